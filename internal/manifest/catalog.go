// Package manifest resolves the remote version catalog into concrete,
// platform-filtered download and launch plans. It owns the external JSON
// formats; nothing outside this package sees a raw manifest document.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soapstonemc/soapstone/internal/fetch"
	"github.com/soapstonemc/soapstone/internal/sandbox"
)

// CacheFileName is the fixed name the raw catalog is cached under.
const CacheFileName = "version_manifest.json"

// releaseCutoff filters out catalog entries older than the first release
// whose detail document carries the argument schema end-to-end.
var releaseCutoff = time.Date(2013, time.April, 24, 0, 0, 0, 0, time.UTC)

// Catalog is the top-level list of installable versions.
type Catalog struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []CatalogEntry `json:"versions"`
}

// CatalogEntry describes one installable version and where to fetch its
// detail document.
type CatalogEntry struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	URL             string    `json:"url"`
	Time            time.Time `json:"time"`
	ReleaseTime     time.Time `json:"releaseTime"`
	SHA1            string    `json:"sha1"`
	ComplianceLevel int       `json:"complianceLevel"`
}

// Client fetches and caches the version catalog and per-version detail
// documents.
type Client struct {
	// Fetcher performs all transfers.
	Fetcher *fetch.Fetcher

	// Endpoints is the ordered primary-then-fallback catalog URL list.
	Endpoints []string

	// CacheDir holds the cached catalog file.
	CacheDir string

	// VersionsDir holds one subdirectory per installed version where the
	// detail document is persisted verbatim.
	VersionsDir string
}

// Versions returns the catalog, reusing the on-disk cache unless force is
// set or no cache exists. On a fresh fetch the endpoints are tried in order
// and the raw body is cached verbatim.
func (c *Client) Versions(ctx context.Context, force bool) (*Catalog, error) {
	cachePath := filepath.Join(c.CacheDir, CacheFileName)

	if !force {
		if data, err := os.ReadFile(cachePath); err == nil {
			var cat Catalog
			if err := json.Unmarshal(data, &cat); err == nil {
				return &cat, nil
			}
			// A corrupt cache falls through to a fresh fetch.
		}
	}

	var lastErr error
	for _, endpoint := range c.Endpoints {
		body, err := c.Fetcher.FetchBytes(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}

		var cat Catalog
		if err := json.Unmarshal(body, &cat); err != nil {
			lastErr = fmt.Errorf("parsing catalog from %s: %w", endpoint, err)
			continue
		}

		if err := sandbox.WriteFile(c.CacheDir, CacheFileName, body, 0644); err != nil {
			return nil, fmt.Errorf("caching catalog: %w", err)
		}
		return &cat, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no catalog endpoints configured")
	}
	return nil, fmt.Errorf("fetching catalog: %w", lastErr)
}

// Releases filters the catalog to the stable channel, newest first,
// dropping entries released before the schema cutoff.
func Releases(cat *Catalog) []CatalogEntry {
	var out []CatalogEntry
	for _, v := range cat.Versions {
		if v.Type != "release" {
			continue
		}
		if v.ReleaseTime.Before(releaseCutoff) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Entry finds a version by id in the catalog.
func Entry(cat *Catalog, id string) (CatalogEntry, bool) {
	for _, v := range cat.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return CatalogEntry{}, false
}

// Detail fetches the per-version detail document for entry and persists it
// verbatim under the versions directory. When the fetch fails but a
// previously persisted copy exists, that copy is used instead.
func (c *Client) Detail(ctx context.Context, entry CatalogEntry) (*VersionDetail, error) {
	localRel := filepath.Join(entry.ID, entry.ID+".json")
	localPath := filepath.Join(c.VersionsDir, localRel)

	body, fetchErr := c.Fetcher.FetchBytes(ctx, entry.URL)
	if fetchErr != nil {
		cached, readErr := os.ReadFile(localPath)
		if readErr != nil {
			return nil, fmt.Errorf("fetching version %s: %w", entry.ID, fetchErr)
		}
		body = cached
	} else {
		if err := sandbox.WriteFile(c.VersionsDir, localRel, body, 0644); err != nil {
			return nil, fmt.Errorf("persisting version %s: %w", entry.ID, err)
		}
	}

	var detail VersionDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("parsing version %s: %w", entry.ID, err)
	}
	return &detail, nil
}
