// Package config loads the soapstone.yaml configuration file. A missing
// file is valid; every field has a usable default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "soapstone.yaml"
const dataDirName = ".soapstone"

// Config represents the soapstone.yaml configuration file.
type Config struct {
	// DataDir is the root of all managed state: versions, libraries,
	// assets, runtimes, instances and the database.
	DataDir string `yaml:"data_dir,omitempty"`

	// CatalogEndpoints is the ordered primary-then-fallback list of
	// version catalog URLs.
	CatalogEndpoints []string `yaml:"catalog_endpoints,omitempty"`

	// AssetEndpoint is the content-addressed asset object base URL.
	AssetEndpoint string `yaml:"asset_endpoint,omitempty"`

	// RuntimeEndpoint is the runtime-distribution URL template with
	// verbs for major version, OS, architecture and vendor.
	RuntimeEndpoint string `yaml:"runtime_endpoint,omitempty"`
	RuntimeVendor   string `yaml:"runtime_vendor,omitempty"`

	// Concurrency bounds simultaneous downloads.
	Concurrency int `yaml:"concurrency,omitempty"`

	// RetryAttempts is the per-transfer retry budget for transient
	// failures.
	RetryAttempts int `yaml:"retry_attempts,omitempty"`

	// HeapMin and HeapMax are the baseline memory flags passed to every
	// launch.
	HeapMin string `yaml:"heap_min,omitempty"`
	HeapMax string `yaml:"heap_max,omitempty"`

	// InstallTimeout bounds one end-to-end install, as a Go duration
	// string. Empty disables the deadline.
	InstallTimeout string `yaml:"install_timeout,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir: filepath.Join(home, dataDirName),
		CatalogEndpoints: []string{
			"https://piston-meta.mojang.com/mc/game/version_manifest_v2.json",
			"https://launchermeta.mojang.com/mc/game/version_manifest_v2.json",
		},
		AssetEndpoint:   "https://resources.download.minecraft.net",
		RuntimeEndpoint: "https://api.adoptium.net/v3/assets/latest/%d/hotspot?os=%s&architecture=%s&image_type=jre&vendor=%s",
		RuntimeVendor:   "eclipse",
		Concurrency:     10,
		RetryAttempts:   3,
		HeapMin:         "-Xms512M",
		HeapMax:         "-Xmx2G",
		InstallTimeout:  "30m",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "soapstone", configFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName, configFileName)
}

// Load reads and validates the config file at path. A missing file yields
// the defaults; a present file overlays them field by field.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.DataDir == "" {
		errs = append(errs, "'data_dir' is required")
	}
	if len(cfg.CatalogEndpoints) == 0 {
		errs = append(errs, "at least one catalog endpoint is required")
	}
	for i, ep := range cfg.CatalogEndpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			errs = append(errs, fmt.Sprintf("catalog_endpoints[%d]: '%s' is not an http(s) URL", i, ep))
		}
	}
	if cfg.AssetEndpoint == "" {
		errs = append(errs, "'asset_endpoint' is required")
	}
	if cfg.RuntimeEndpoint == "" {
		errs = append(errs, "'runtime_endpoint' is required")
	} else if strings.Count(cfg.RuntimeEndpoint, "%s") != 3 || !strings.Contains(cfg.RuntimeEndpoint, "%d") {
		errs = append(errs, "'runtime_endpoint' must carry one %d (major version) and three %s (os, arch, vendor) verbs")
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("'concurrency' must be at least 1, got %d", cfg.Concurrency))
	}
	if cfg.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("'retry_attempts' must not be negative, got %d", cfg.RetryAttempts))
	}
	for _, flag := range []struct{ name, value string }{
		{"heap_min", cfg.HeapMin},
		{"heap_max", cfg.HeapMax},
	} {
		if flag.value != "" && !strings.HasPrefix(flag.value, "-X") {
			errs = append(errs, fmt.Sprintf("'%s': '%s' is not a -X memory flag", flag.name, flag.value))
		}
	}
	if cfg.InstallTimeout != "" {
		if _, err := time.ParseDuration(cfg.InstallTimeout); err != nil {
			errs = append(errs, fmt.Sprintf("'install_timeout': %v", err))
		}
	}

	return errs
}

// Timeout returns the parsed install timeout. Validate has already
// guaranteed the field parses; an empty field means no deadline.
func (c *Config) Timeout() time.Duration {
	if c.InstallTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.InstallTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Derived locations under the data directory.

func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "soapstone.db") }
func (c *Config) VersionsDir() string  { return filepath.Join(c.DataDir, "versions") }
func (c *Config) AssetsDir() string    { return filepath.Join(c.DataDir, "assets") }
func (c *Config) RuntimesDir() string  { return filepath.Join(c.DataDir, "jre") }
func (c *Config) InstancesDir() string { return filepath.Join(c.DataDir, "instances") }
