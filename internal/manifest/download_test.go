package manifest

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/soapstonemc/soapstone/internal/assets"
	"github.com/soapstonemc/soapstone/internal/fetch"
)

func sha1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

func buildNativeArchive(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownloadAll(t *testing.T) {
	binary := []byte("client jar bytes")
	library := []byte("library jar bytes")
	assetA := []byte("grass texture")
	assetB := []byte("stone texture")
	native := buildNativeArchive(t, map[string][]byte{
		"liblwjgl.so":        []byte("native binary"),
		"META-INF/MANIFEST":  []byte("skip me"),
		"excluded/skip.txt":  []byte("skip me too"),
		"subdir/libother.so": []byte("nested native"),
	})

	index := AssetIndex{Objects: map[string]AssetObject{
		"minecraft/textures/grass.png":     {Hash: sha1Hex(assetA), Size: int64(len(assetA))},
		"minecraft/textures/grass_top.png": {Hash: sha1Hex(assetA), Size: int64(len(assetA))}, // duplicate hash
		"minecraft/textures/stone.png":     {Hash: sha1Hex(assetB), Size: int64(len(assetB))},
	}}
	indexBody, err := json.Marshal(index)
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/client.jar", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(binary) })
	mux.HandleFunc("/library.jar", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(library) })
	mux.HandleFunc("/natives.jar", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(native) })
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(indexBody) })
	var assetRequests atomic.Int32
	mux.HandleFunc("/objects/", func(w http.ResponseWriter, r *http.Request) {
		assetRequests.Add(1)
		switch filepath.Base(r.URL.Path) {
		case sha1Hex(assetA):
			_, _ = w.Write(assetA)
		case sha1Hex(assetB):
			_, _ = w.Write(assetB)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dataDir := t.TempDir()
	store, err := assets.NewStore(filepath.Join(dataDir, "assets"))
	if err != nil {
		t.Fatal(err)
	}

	desc := &VersionDescriptor{
		ID:         "1.20.1",
		BinaryPath: "versions/1.20.1/1.20.1.jar",
		NativesDir: "versions/1.20.1/natives",
		Binary:     DownloadInfo{URL: srv.URL + "/client.jar", SHA1: sha1Hex(binary)},
		AssetIndex: AssetIndexRef{ID: "5", URL: srv.URL + "/index.json", SHA1: sha1Hex(indexBody)},
		Libraries: []LibraryArtifact{
			{Name: "org.lwjgl:lwjgl:3.3.1", Path: "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar", URL: srv.URL + "/library.jar", SHA1: sha1Hex(library)},
		},
		Natives: []NativeArtifact{
			{Name: "org.lwjgl:lwjgl-platform:2.9.4", URL: srv.URL + "/natives.jar", SHA1: sha1Hex(native), Exclude: []string{"excluded/"}},
		},
	}

	var binaryPct, assetPct, libPct []int
	opts := DownloadOptions{
		DataDir:        dataDir,
		AssetStore:     store,
		AssetObjectURL: srv.URL + "/objects",
		OnBinary:       func(p int) { binaryPct = append(binaryPct, p) },
		OnAssets:       func(p int) { assetPct = append(assetPct, p) },
		OnLibraries:    func(p int) { libPct = append(libPct, p) },
	}

	f := fetch.New(fetch.Options{RetryAttempts: 1, RetryBackoff: 1})
	if err := DownloadAll(context.Background(), f, desc, opts); err != nil {
		t.Fatalf("DownloadAll: %v", err)
	}

	// Binary and library landed at their descriptor paths.
	for _, rel := range []string{
		"versions/1.20.1/1.20.1.jar",
		"libraries/org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar",
	} {
		if _, err := os.Stat(filepath.Join(dataDir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	// Duplicate asset hash collapsed: two distinct objects, two requests.
	if n := assetRequests.Load(); n != 2 {
		t.Errorf("asset requests = %d, want 2", n)
	}
	if !store.Has(sha1Hex(assetA)) || !store.Has(sha1Hex(assetB)) {
		t.Error("asset objects missing from store")
	}

	// Natives extracted selectively; archive itself discarded.
	nativesDir := filepath.Join(dataDir, "versions", "1.20.1", "natives")
	if _, err := os.Stat(filepath.Join(nativesDir, "liblwjgl.so")); err != nil {
		t.Errorf("native not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(nativesDir, "subdir", "libother.so")); err != nil {
		t.Errorf("nested native not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(nativesDir, "META-INF")); !os.IsNotExist(err) {
		t.Error("jar metadata should not be extracted")
	}
	if _, err := os.Stat(filepath.Join(nativesDir, "excluded")); !os.IsNotExist(err) {
		t.Error("excluded prefix should not be extracted")
	}
	entries, err := os.ReadDir(nativesDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".jar" {
			t.Errorf("native archive left behind: %s", e.Name())
		}
	}

	// Each phase reached 100.
	for name, pcts := range map[string][]int{"binary": binaryPct, "assets": assetPct, "libraries": libPct} {
		if len(pcts) == 0 || pcts[len(pcts)-1] != 100 {
			t.Errorf("%s progress %v did not reach 100", name, pcts)
		}
	}
}

func TestDownloadAllFailsOnCorruptNative(t *testing.T) {
	notAZip := []byte("certainly not a zip archive")
	mux := http.NewServeMux()
	mux.HandleFunc("/natives.jar", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(notAZip) })
	mux.HandleFunc("/client.jar", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("jar")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dataDir := t.TempDir()
	store, err := assets.NewStore(filepath.Join(dataDir, "assets"))
	if err != nil {
		t.Fatal(err)
	}

	desc := &VersionDescriptor{
		ID:         "1.8.9",
		BinaryPath: "versions/1.8.9/1.8.9.jar",
		NativesDir: "versions/1.8.9/natives",
		Binary:     DownloadInfo{URL: srv.URL + "/client.jar", SHA1: sha1Hex([]byte("jar"))},
		Natives: []NativeArtifact{
			{Name: "broken", URL: srv.URL + "/natives.jar", SHA1: sha1Hex(notAZip)},
		},
	}

	opts := DownloadOptions{DataDir: dataDir, AssetStore: store, AssetObjectURL: srv.URL + "/objects"}
	f := fetch.New(fetch.Options{RetryAttempts: 1, RetryBackoff: 1})

	err = DownloadAll(context.Background(), f, desc, opts)
	if err == nil {
		t.Fatal("extraction failure must fail the library phase")
	}
	if !strings.Contains(err.Error(), "libraries:") {
		t.Errorf("error %q does not attribute the library phase", err)
	}
}
