// Package soapstone provides the public Go library API for soapstone.
//
// soapstone installs and launches versions of a game runtime: it resolves
// a remote version catalog, downloads and verifies the version's artifact
// graph, provisions a matching Java runtime and supervises launched
// processes. This package wires the internal components together for
// embedding in other Go programs; the CLI in cmd/soapstone is a thin
// consumer of it.
//
// # Basic Usage
//
//	app, err := soapstone.New(soapstone.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	// Install a version under a display name
//	rec, err := app.Install(ctx, "vanilla", "1.20.1", nil)
//
//	// Launch it and wait for exit diagnostics
//	inst, _, err := app.Launch(ctx, "vanilla", nil)
//	diags := inst.Wait()
package soapstone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/soapstonemc/soapstone/internal/assets"
	"github.com/soapstonemc/soapstone/internal/config"
	"github.com/soapstonemc/soapstone/internal/fetch"
	"github.com/soapstonemc/soapstone/internal/installer"
	"github.com/soapstonemc/soapstone/internal/jre"
	"github.com/soapstonemc/soapstone/internal/launch"
	"github.com/soapstonemc/soapstone/internal/manifest"
	"github.com/soapstonemc/soapstone/internal/progress"
	"github.com/soapstonemc/soapstone/internal/store"
)

// Options configures an App.
type Options struct {
	// ConfigPath is the path to the config file. Default: the per-user
	// location; a missing file yields defaults.
	ConfigPath string

	// Config bypasses file loading entirely when set.
	Config *config.Config

	// LauncherName and LauncherVersion identify this build to launched
	// processes.
	LauncherName    string
	LauncherVersion string

	// Logger receives background-task logging. Default: slog.Default().
	Logger *slog.Logger
}

// App is the main entry point for the soapstone library.
type App struct {
	cfg        *config.Config
	store      *store.Store
	catalog    *manifest.Client
	runtime    *jre.Acquirer
	orch       *installer.Orchestrator
	supervisor *launch.Supervisor
}

// New creates an App, loading configuration and opening the database.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		path := opts.ConfigPath
		if path == "" {
			path = config.DefaultPath()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	assetStore, err := assets.NewStore(cfg.AssetsDir())
	if err != nil {
		db.Close()
		return nil, err
	}

	fetcherOpts := fetch.DefaultOptions()
	fetcherOpts.Concurrency = cfg.Concurrency
	fetcherOpts.RetryAttempts = cfg.RetryAttempts
	fetcherOpts.UserAgent = "soapstone/" + launcherVersion(opts)
	fetcher := fetch.New(fetcherOpts)

	catalog := &manifest.Client{
		Fetcher:     fetcher,
		Endpoints:   cfg.CatalogEndpoints,
		CacheDir:    cfg.DataDir,
		VersionsDir: cfg.VersionsDir(),
	}
	runtime := &jre.Acquirer{
		Fetcher:  fetcher,
		BaseDir:  cfg.RuntimesDir(),
		Endpoint: cfg.RuntimeEndpoint,
		Vendor:   cfg.RuntimeVendor,
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		cfg:     cfg,
		store:   db,
		catalog: catalog,
		runtime: runtime,
		orch: &installer.Orchestrator{
			Store:          db,
			Fetcher:        fetcher,
			Catalog:        catalog,
			Runtime:        runtime,
			AssetStore:     assetStore,
			DataDir:        cfg.DataDir,
			InstancesDir:   cfg.InstancesDir(),
			AssetObjectURL: cfg.AssetEndpoint,
			Timeout:        cfg.Timeout(),
			Logger:         logger,
		},
		supervisor: &launch.Supervisor{
			DataDir:         cfg.DataDir,
			InstancesDir:    cfg.InstancesDir(),
			JavaPath:        runtime.Installed,
			HeapMin:         cfg.HeapMin,
			HeapMax:         cfg.HeapMax,
			LauncherName:    launcherName(opts),
			LauncherVersion: launcherVersion(opts),
			Logger:          logger,
		},
	}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.store.Close()
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Versions lists installable versions. With all unset the list is filtered
// to the stable channel; refresh forces a catalog reload over the cache.
func (a *App) Versions(ctx context.Context, all, refresh bool) ([]manifest.CatalogEntry, error) {
	cat, err := a.catalog.Versions(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if all {
		return cat.Versions, nil
	}
	return manifest.Releases(cat), nil
}

// Install runs one end-to-end installation under the given display name.
func (a *App) Install(ctx context.Context, name, versionID string, observer func(progress.Snapshot)) (*store.Installation, error) {
	return a.orch.Install(ctx, name, versionID, observer)
}

// Instances lists all install records.
func (a *App) Instances() ([]*store.Installation, error) {
	return a.store.List()
}

// Launch starts the installation with the given display name using the
// persisted account credentials, or an offline identity when none are set.
func (a *App) Launch(ctx context.Context, name string, onState func(launch.RunState)) (*launch.Instance, *store.Installation, error) {
	rec, err := a.store.GetByName(name)
	if err != nil {
		return nil, nil, err
	}

	var creds launch.Credentials
	if acc, err := a.store.Account(); err == nil {
		creds = launch.Credentials{
			PlayerName:  acc.PlayerName,
			PlayerUUID:  acc.PlayerUUID,
			AccessToken: acc.AccessToken,
			UserType:    acc.UserType,
		}
	}

	inst, err := a.supervisor.Launch(ctx, rec, creds, onState)
	if err != nil {
		return nil, nil, err
	}
	return inst, rec, nil
}

// Remove deletes an install record and its instance folder.
func (a *App) Remove(name string) error {
	rec, err := a.store.GetByName(name)
	if err != nil {
		return err
	}
	if err := a.store.Delete(rec.ID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(a.cfg.InstancesDir(), rec.Folder))
}

// SetAccount persists the credential set used by Launch, replacing any
// existing one.
func (a *App) SetAccount(playerName, playerUUID, accessToken, userType string) error {
	acc := &store.Account{
		ID:          uuid.NewString(),
		PlayerName:  playerName,
		PlayerUUID:  playerUUID,
		AccessToken: accessToken,
		UserType:    userType,
	}
	if existing, err := a.store.Account(); err == nil {
		acc.ID = existing.ID
	}
	if acc.UserType == "" {
		acc.UserType = "offline"
	}
	return a.store.SetAccount(acc)
}

// Account returns the persisted credential set.
func (a *App) Account() (*store.Account, error) {
	return a.store.Account()
}

func launcherName(opts Options) string {
	if opts.LauncherName != "" {
		return opts.LauncherName
	}
	return "soapstone"
}

func launcherVersion(opts Options) string {
	if opts.LauncherVersion != "" {
		return opts.LauncherVersion
	}
	return "dev"
}
