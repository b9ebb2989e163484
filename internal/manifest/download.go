package manifest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/soapstonemc/soapstone/internal/assets"
	"github.com/soapstonemc/soapstone/internal/fetch"
	"github.com/soapstonemc/soapstone/internal/sandbox"
)

// DownloadOptions wires the bulk-download phase.
type DownloadOptions struct {
	// DataDir is the root all descriptor-relative paths resolve against.
	DataDir string

	// AssetStore is the shared content-addressed object store.
	AssetStore *assets.Store

	// AssetObjectURL is the content-addressed object endpoint; objects are
	// fetched from <AssetObjectURL>/<hash[0:2]>/<hash>.
	AssetObjectURL string

	// Workers bounds per-phase parallelism (on top of the fetcher's global
	// admission gate). Default: 8.
	Workers int

	// OnBinary, OnAssets, OnLibraries receive 0-100 phase percentages.
	OnBinary    func(pct int)
	OnAssets    func(pct int)
	OnLibraries func(pct int)
}

// DownloadAll runs the three download streams (primary binary, asset
// objects, libraries plus native archives) concurrently, each with its own
// bounded parallelism and progress callback. The first error cancels the
// remaining work.
func DownloadAll(ctx context.Context, f *fetch.Fetcher, desc *VersionDescriptor, opts DownloadOptions) error {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := downloadBinary(ctx, f, desc, opts); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := downloadAssets(ctx, f, desc, opts); err != nil {
			fail(fmt.Errorf("assets: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := downloadLibraries(ctx, f, desc, opts); err != nil {
			fail(fmt.Errorf("libraries: %w", err))
		}
	}()
	wg.Wait()

	return firstErr
}

func downloadBinary(ctx context.Context, f *fetch.Fetcher, desc *VersionDescriptor, opts DownloadOptions) error {
	if desc.Binary.URL == "" {
		return fmt.Errorf("version %s has no client download", desc.ID)
	}
	dest := filepath.Join(opts.DataDir, filepath.FromSlash(desc.BinaryPath))
	return f.Fetch(ctx, desc.Binary.URL, dest, desc.Binary.SHA1, opts.OnBinary)
}

func downloadAssets(ctx context.Context, f *fetch.Fetcher, desc *VersionDescriptor, opts DownloadOptions) error {
	if desc.AssetIndex.URL == "" {
		// Very old versions ship no asset index; nothing to do.
		report(opts.OnAssets, 100)
		return nil
	}

	indexPath := opts.AssetStore.IndexPath(desc.AssetIndex.ID)
	if err := f.Fetch(ctx, desc.AssetIndex.URL, indexPath, desc.AssetIndex.SHA1, nil); err != nil {
		return fmt.Errorf("fetching asset index %s: %w", desc.AssetIndex.ID, err)
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return err
	}
	var index AssetIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("parsing asset index %s: %w", desc.AssetIndex.ID, err)
	}

	// Identical bytes are never fetched twice in one pass: collapse
	// duplicate hashes before scheduling.
	hashes := make(map[string]bool, len(index.Objects))
	for _, obj := range index.Objects {
		hashes[obj.Hash] = true
	}

	jobs := make([]func(context.Context) error, 0, len(hashes))
	base := strings.TrimSuffix(opts.AssetObjectURL, "/")
	for hash := range hashes {
		h := hash
		jobs = append(jobs, func(ctx context.Context) error {
			if opts.AssetStore.Has(h) {
				return nil
			}
			url := base + "/" + h[:2] + "/" + h
			return f.Fetch(ctx, url, opts.AssetStore.ObjectPath(h), h, nil)
		})
	}

	return runPool(ctx, opts.Workers, jobs, opts.OnAssets)
}

func downloadLibraries(ctx context.Context, f *fetch.Fetcher, desc *VersionDescriptor, opts DownloadOptions) error {
	nativesDir := filepath.Join(opts.DataDir, filepath.FromSlash(desc.NativesDir))

	jobs := make([]func(context.Context) error, 0, len(desc.Libraries)+len(desc.Natives))
	for _, lib := range desc.Libraries {
		l := lib
		jobs = append(jobs, func(ctx context.Context) error {
			dest := filepath.Join(opts.DataDir, "libraries", filepath.FromSlash(l.Path))
			if err := f.Fetch(ctx, l.URL, dest, l.SHA1, nil); err != nil {
				return fmt.Errorf("%s: %w", l.Name, err)
			}
			return nil
		})
	}
	for _, native := range desc.Natives {
		n := native
		jobs = append(jobs, func(ctx context.Context) error {
			if err := fetchAndExtractNative(ctx, f, n, nativesDir); err != nil {
				return fmt.Errorf("%s: %w", n.Name, err)
			}
			return nil
		})
	}

	return runPool(ctx, opts.Workers, jobs, opts.OnLibraries)
}

// fetchAndExtractNative downloads a native classifier archive to a scratch
// file, extracts its platform binary entries into the natives directory and
// discards the archive. An extraction error fails the whole phase; a
// half-populated natives directory would otherwise surface much later as an
// opaque crash at launch.
func fetchAndExtractNative(ctx context.Context, f *fetch.Fetcher, n NativeArtifact, nativesDir string) error {
	if err := os.MkdirAll(nativesDir, 0755); err != nil {
		return err
	}

	scratch, err := os.CreateTemp(nativesDir, ".native-*.jar")
	if err != nil {
		return err
	}
	scratchPath := scratch.Name()
	_ = scratch.Close()
	_ = os.Remove(scratchPath)
	defer os.Remove(scratchPath)

	if err := f.Fetch(ctx, n.URL, scratchPath, n.SHA1, nil); err != nil {
		return err
	}

	return extractNatives(scratchPath, nativesDir, n.Exclude)
}

// extractNatives copies the archive's file entries into destDir, skipping
// directories, excluded prefixes and jar metadata.
func extractNatives(archivePath, destDir string, exclude []string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening native archive: %w", err)
	}
	defer r.Close()

	for _, entry := range r.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if excluded(entry.Name, exclude) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", entry.Name, err)
		}

		// WriteFile containment-checks the entry name, which is the
		// zip-slip guard for hostile archives.
		if err := sandbox.WriteFile(destDir, entry.Name, content, 0755); err != nil {
			return fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
	}
	return nil
}

func excluded(name string, exclude []string) bool {
	if strings.HasPrefix(name, "META-INF/") {
		return true
	}
	for _, prefix := range exclude {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// runPool runs jobs across a fixed worker set, reporting percent complete
// after each job. The first failure cancels the rest.
func runPool(ctx context.Context, workers int, jobs []func(context.Context) error, onProgress func(int)) error {
	if len(jobs) == 0 {
		report(onProgress, 100)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan func(context.Context) error)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var done int

	if workers > len(jobs) {
		workers = len(jobs)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if ctx.Err() != nil {
					continue
				}
				err := job(ctx)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
					cancel()
				}
				done++
				pct := done * 100 / len(jobs)
				mu.Unlock()
				if err == nil {
					report(onProgress, pct)
				}
			}
		}()
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()

	return firstErr
}

func report(onProgress func(int), pct int) {
	if onProgress != nil {
		onProgress(pct)
	}
}
