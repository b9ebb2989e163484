package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soapstonemc/soapstone/internal/fetch"
)

const catalogDoc = `{
	"latest": {"release": "1.20.1", "snapshot": "23w31a"},
	"versions": [
		{"id": "23w31a", "type": "snapshot", "url": "https://example.invalid/23w31a.json", "releaseTime": "2023-08-01T10:00:00+00:00"},
		{"id": "1.20.1", "type": "release", "url": "https://example.invalid/1.20.1.json", "releaseTime": "2023-06-12T13:25:51+00:00"},
		{"id": "1.5.2", "type": "release", "url": "https://example.invalid/1.5.2.json", "releaseTime": "2013-04-25T15:45:00+00:00"},
		{"id": "1.0", "type": "release", "url": "https://example.invalid/1.0.json", "releaseTime": "2011-11-17T22:00:00+00:00"}
	]
}`

func newCatalogClient(t *testing.T, endpoints ...string) *Client {
	t.Helper()
	dir := t.TempDir()
	return &Client{
		Fetcher:     fetch.New(fetch.Options{RetryAttempts: 1, RetryBackoff: 1}),
		Endpoints:   endpoints,
		CacheDir:    dir,
		VersionsDir: filepath.Join(dir, "versions"),
	}
}

func TestVersionsCachesCatalog(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(catalogDoc))
	}))
	defer srv.Close()

	c := newCatalogClient(t, srv.URL)

	cat, err := c.Versions(context.Background(), false)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if cat.Latest.Release != "1.20.1" {
		t.Errorf("latest release = %s", cat.Latest.Release)
	}
	if _, err := os.Stat(filepath.Join(c.CacheDir, CacheFileName)); err != nil {
		t.Fatalf("catalog not cached: %v", err)
	}

	// Second call reuses the cache.
	if _, err := c.Versions(context.Background(), false); err != nil {
		t.Fatalf("cached Versions: %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}

	// Force reload hits the network again.
	if _, err := c.Versions(context.Background(), true); err != nil {
		t.Fatalf("forced Versions: %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected 2 requests after force, got %d", n)
	}
}

func TestVersionsFallbackEndpoints(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(catalogDoc))
	}))
	defer good.Close()

	c := newCatalogClient(t, bad.URL, good.URL)
	cat, err := c.Versions(context.Background(), false)
	if err != nil {
		t.Fatalf("Versions with fallback: %v", err)
	}
	if len(cat.Versions) != 4 {
		t.Errorf("got %d versions", len(cat.Versions))
	}
}

func TestVersionsAllEndpointsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer bad.Close()

	c := newCatalogClient(t, bad.URL, bad.URL)
	if _, err := c.Versions(context.Background(), false); err == nil {
		t.Fatal("expected error")
	}
}

func TestReleasesFiltersChannelAndCutoff(t *testing.T) {
	cat := &Catalog{}
	cat.Versions = []CatalogEntry{
		{ID: "23w31a", Type: "snapshot", ReleaseTime: time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "1.20.1", Type: "release", ReleaseTime: time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC)},
		{ID: "1.0", Type: "release", ReleaseTime: time.Date(2011, 11, 17, 0, 0, 0, 0, time.UTC)},
	}

	got := Releases(cat)
	if len(got) != 1 || got[0].ID != "1.20.1" {
		t.Errorf("Releases = %+v", got)
	}
}

func TestDetailPersistsAndFallsBackOffline(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id": "1.20.1", "mainClass": "net.minecraft.client.main.Main"}`))
	}))
	defer srv.Close()

	c := newCatalogClient(t, srv.URL)
	entry := CatalogEntry{ID: "1.20.1", URL: srv.URL}

	detail, err := c.Detail(context.Background(), entry)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if detail.MainClass != "net.minecraft.client.main.Main" {
		t.Errorf("MainClass = %s", detail.MainClass)
	}

	persisted := filepath.Join(c.VersionsDir, "1.20.1", "1.20.1.json")
	if _, err := os.Stat(persisted); err != nil {
		t.Fatalf("detail not persisted: %v", err)
	}

	// Endpoint goes away; the persisted copy serves the re-read.
	fail.Store(true)
	detail, err = c.Detail(context.Background(), entry)
	if err != nil {
		t.Fatalf("offline Detail: %v", err)
	}
	if detail.ID != "1.20.1" {
		t.Errorf("offline ID = %s", detail.ID)
	}
}
