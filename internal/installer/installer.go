// Package installer drives one end-to-end installation: folder allocation,
// durable lifecycle records, and the parallel artifact and runtime download
// phases funneled through a single progress aggregator.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soapstonemc/soapstone/internal/assets"
	"github.com/soapstonemc/soapstone/internal/fetch"
	"github.com/soapstonemc/soapstone/internal/jre"
	"github.com/soapstonemc/soapstone/internal/manifest"
	"github.com/soapstonemc/soapstone/internal/platform"
	"github.com/soapstonemc/soapstone/internal/progress"
	"github.com/soapstonemc/soapstone/internal/store"
)

// Common errors.
var (
	ErrEmptyName      = errors.New("installer: display name is empty")
	ErrUnknownVersion = errors.New("installer: version not in catalog")

	// errTimeout is the distinct cancellation cause for the per-install
	// deadline, so callers can tell "timed out" from "canceled".
	errTimeout = errors.New("installer: install timed out")
)

// Orchestrator owns the install pipeline.
type Orchestrator struct {
	Store      *store.Store
	Fetcher    *fetch.Fetcher
	Catalog    *manifest.Client
	Runtime    *jre.Acquirer
	AssetStore *assets.Store

	// DataDir is the root of the shared version/library/asset tree.
	DataDir string

	// InstancesDir holds one folder per installation.
	InstancesDir string

	// AssetObjectURL is the content-addressed asset endpoint.
	AssetObjectURL string

	// Timeout bounds one install end to end. Zero disables the deadline.
	Timeout time.Duration

	Logger *slog.Logger

	// names serializes the check-then-allocate window per display name so
	// two concurrent installs in this process cannot race the same name.
	// Cross-process callers remain serialized by the single-install UI
	// gate above this layer.
	namesMu sync.Mutex
	names   map[string]*sync.Mutex
}

// Install runs one installation. The installing record is durably written
// before any artifact byte is fetched; it flips to ready only after both
// the artifact and runtime phases succeed. On failure the record stays in
// installing state for inspection and retry.
func (o *Orchestrator) Install(ctx context.Context, name, versionID string, observer func(progress.Snapshot)) (*store.Installation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	log := o.logger().With("name", name, "version", versionID)

	if _, err := o.Store.GetByName(name); err == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateName, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	unlock := o.lockName(name)
	defer unlock()

	cancel := func() {}
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, o.Timeout, errTimeout)
	}
	defer cancel()

	cat, err := o.Catalog.Versions(ctx, false)
	if err != nil {
		return nil, o.describeCancel(ctx, err)
	}
	entry, ok := manifest.Entry(cat, versionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, versionID)
	}

	detail, err := o.Catalog.Detail(ctx, entry)
	if err != nil {
		return nil, o.describeCancel(ctx, err)
	}
	desc, err := manifest.Resolve(detail, platform.Current())
	if err != nil {
		return nil, err
	}

	folder, err := AllocateFolder(o.InstancesDir, name)
	if err != nil {
		return nil, err
	}

	// The earlier existence check narrows but does not eliminate the
	// duplicate window; re-check now that the folder is claimed.
	if _, err := o.Store.GetByName(name); err == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateName, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rec := &store.Installation{
		ID:         uuid.NewString(),
		Name:       name,
		VersionID:  desc.ID,
		Type:       desc.Type,
		Folder:     folder,
		JavaMajor:  desc.JavaMajor,
		BinaryPath: desc.BinaryPath,
		MainClass:  desc.MainClass,
		AssetIndex: desc.AssetIndex.ID,
		JVMArgs:    desc.JVMArgs,
		GameArgs:   desc.GameArgs,
		ClassPath:  desc.ClassPath,
	}
	if err := o.Store.CreateInstalling(rec); err != nil {
		return nil, err
	}
	log.Info("install record created", "id", rec.ID, "folder", folder)

	agg := progress.New(rec.ID, observer)
	defer agg.Close()
	agg.Reset()

	if err := o.downloadPhases(ctx, desc, agg); err != nil {
		log.Warn("install failed; record left in installing state", "id", rec.ID, "error", err)
		return nil, o.describeCancel(ctx, err)
	}

	if err := o.Store.MarkReady(rec.ID); err != nil {
		return nil, err
	}
	log.Info("install ready", "id", rec.ID)

	return o.Store.Get(rec.ID)
}

// downloadPhases runs the artifact and runtime branches in parallel. An
// error in either branch fails the install; the other branch's result is
// discarded.
func (o *Orchestrator) downloadPhases(ctx context.Context, desc *manifest.VersionDescriptor, agg *progress.Aggregator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var artifactsErr, runtimeErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		artifactsErr = manifest.DownloadAll(ctx, o.Fetcher, desc, manifest.DownloadOptions{
			DataDir:        o.DataDir,
			AssetStore:     o.AssetStore,
			AssetObjectURL: o.AssetObjectURL,
			OnBinary:       func(p int) { agg.Set(progress.GaugeBinary, p) },
			OnAssets:       func(p int) { agg.Set(progress.GaugeAssets, p) },
			OnLibraries:    func(p int) { agg.Set(progress.GaugeLibraries, p) },
		})
		if artifactsErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		_, runtimeErr = o.Runtime.Ensure(ctx, desc.JavaMajor, func(p int) {
			agg.Set(progress.GaugeRuntime, p)
		})
		if runtimeErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if artifactsErr != nil {
		return artifactsErr
	}
	return runtimeErr
}

// describeCancel maps a context-driven failure to the distinct timeout or
// cancellation message; other errors pass through.
func (o *Orchestrator) describeCancel(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, errTimeout) {
			return fmt.Errorf("install timed out after %s", o.Timeout)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("install canceled: %w", err)
		}
	}
	return err
}

func (o *Orchestrator) lockName(name string) func() {
	o.namesMu.Lock()
	if o.names == nil {
		o.names = make(map[string]*sync.Mutex)
	}
	mu, ok := o.names[name]
	if !ok {
		mu = &sync.Mutex{}
		o.names[name] = mu
	}
	o.namesMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
