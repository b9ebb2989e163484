// Package jre resolves and installs a managed Java runtime matching the
// major version a game version requires. Distributions come from a
// parameterized binary endpoint, one archive per os/arch/major combination.
package jre

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/soapstonemc/soapstone/internal/fetch"
	"github.com/soapstonemc/soapstone/internal/platform"
)

// ErrUnsupportedPlatform is returned when the endpoint has no build for
// this major/os/arch combination, so callers can show an actionable
// message instead of a generic failure.
var ErrUnsupportedPlatform = errors.New("jre: no runtime build for this platform")

// Acquirer installs Java runtime distributions under BaseDir, one
// directory per major version.
type Acquirer struct {
	Fetcher *fetch.Fetcher

	// BaseDir is the directory runtimes are installed under
	// (<BaseDir>/<major>/...).
	BaseDir string

	// Endpoint is the runtime-distribution URL template with %d for the
	// major version and %s/%s for os and architecture.
	Endpoint string

	// Vendor selects the distribution vendor segment of the endpoint.
	Vendor string
}

// DefaultEndpoint serves Temurin builds: major, os, arch, then vendor.
const DefaultEndpoint = "https://api.adoptium.net/v3/assets/latest/%d/hotspot?os=%s&architecture=%s&image_type=jre&vendor=%s"

// release is the relevant slice of the endpoint's response document.
type release struct {
	Binary struct {
		Package struct {
			Link     string `json:"link"`
			Checksum string `json:"checksum"`
			Name     string `json:"name"`
		} `json:"package"`
	} `json:"binary"`
}

// Ensure makes a runtime of the given major version available locally and
// returns the path to its java binary. Already-installed runtimes are
// reused without network activity; onProgress then reports 100 once.
func (a *Acquirer) Ensure(ctx context.Context, major int, onProgress func(pct int)) (string, error) {
	if major <= 0 {
		return "", fmt.Errorf("jre: invalid major version %d", major)
	}

	home := filepath.Join(a.BaseDir, fmt.Sprint(major))
	if bin, err := javaBinary(home); err == nil {
		if onProgress != nil {
			onProgress(100)
		}
		return bin, nil
	}

	link, checksum, err := a.resolve(ctx, major)
	if err != nil {
		return "", err
	}

	archive := filepath.Join(a.BaseDir, fmt.Sprintf("%d%s", major, archiveExt()))
	scaled := func(pct int) {
		// Reserve the last 10% for extraction.
		if onProgress != nil {
			onProgress(pct * 90 / 100)
		}
	}
	if err := a.Fetcher.Fetch(ctx, link, archive, checksum, scaled); err != nil {
		return "", fmt.Errorf("downloading runtime %d: %w", major, err)
	}
	defer os.Remove(archive)

	if err := os.RemoveAll(home); err != nil {
		return "", err
	}
	if err := extractArchive(archive, home); err != nil {
		return "", fmt.Errorf("extracting runtime %d: %w", major, err)
	}
	if onProgress != nil {
		onProgress(100)
	}

	return javaBinary(home)
}

// Installed returns the java binary of an already-installed runtime of the
// given major version, without touching the network.
func (a *Acquirer) Installed(major int) (string, error) {
	return javaBinary(filepath.Join(a.BaseDir, fmt.Sprint(major)))
}

// resolve asks the distribution endpoint for the archive URL and checksum.
func (a *Acquirer) resolve(ctx context.Context, major int) (link, checksum string, err error) {
	vendor := a.Vendor
	if vendor == "" {
		vendor = "eclipse"
	}
	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	url := fmt.Sprintf(endpoint, major, platform.RuntimeOS(), platform.RuntimeArch(), vendor)

	var releases []release
	if err := a.Fetcher.FetchJSON(ctx, url, &releases); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			return "", "", fmt.Errorf("%w: java %d on %s/%s", ErrUnsupportedPlatform, major, platform.RuntimeOS(), platform.RuntimeArch())
		}
		return "", "", fmt.Errorf("resolving runtime %d: %w", major, err)
	}
	if len(releases) == 0 {
		return "", "", fmt.Errorf("%w: java %d on %s/%s", ErrUnsupportedPlatform, major, platform.RuntimeOS(), platform.RuntimeArch())
	}

	pkg := releases[0].Binary.Package
	if pkg.Link == "" {
		return "", "", fmt.Errorf("runtime %d: release document has no download link", major)
	}
	return pkg.Link, pkg.Checksum, nil
}

// javaBinary locates the java executable under an installed runtime home.
func javaBinary(home string) (string, error) {
	candidates := []string{
		filepath.Join(home, "bin", exeName()),
		// macOS distributions nest the real home inside an app bundle.
		filepath.Join(home, "Contents", "Home", "bin", exeName()),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no java binary under %s", home)
}

func exeName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

func archiveExt() string {
	if runtime.GOOS == "windows" {
		return ".zip"
	}
	return ".tar.gz"
}

// stripRoot removes the archive's single top-level directory from an entry
// name, returning ok=false for the root entry itself.
func stripRoot(name string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	i := strings.IndexByte(name, '/')
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	return name[i+1:], true
}
