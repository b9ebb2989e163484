// Package fetch implements the bounded-concurrency content fetcher: HTTP to
// file with integrity verification, idempotent short-circuit and atomic
// replacement of the destination.
package fetch

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Common errors.
var (
	// ErrNotFound is returned for a 404; the URL/platform combination does
	// not exist upstream and retrying will not help.
	ErrNotFound = errors.New("fetch: resource not found")

	// ErrServerError marks retryable upstream failures (5xx).
	ErrServerError = errors.New("fetch: server error")

	// ErrChecksum is returned when the downloaded body does not match the
	// expected digest after one fresh re-fetch.
	ErrChecksum = errors.New("fetch: checksum mismatch")

	// ErrUnsupportedDigest is returned for an expected-hash string whose
	// length matches no supported algorithm. This is a caller bug, not a
	// transfer failure.
	ErrUnsupportedDigest = errors.New("fetch: unsupported digest length")
)

// Options configures a Fetcher.
type Options struct {
	// Concurrency bounds the number of simultaneous transfers.
	// Default: 10
	Concurrency int

	// RetryAttempts is the maximum number of retries for transient failures.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the backoff duration.
	// Default: 15s
	RetryMaxBackoff time.Duration

	// Client is the HTTP client to use. Default: a client with a 30s
	// per-request timeout disabled (large assets), relying on context.
	Client *http.Client

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:     10,
		RetryAttempts:   3,
		RetryBackoff:    500 * time.Millisecond,
		RetryMaxBackoff: 15 * time.Second,
	}
}

// Fetcher downloads remote content to local files. The zero value is not
// usable; construct with New.
type Fetcher struct {
	opts Options
	sem  chan struct{}
}

// New creates a Fetcher. Zero-valued options fall back to defaults.
func New(opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = def.RetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: opts.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Fetcher{
		opts: opts,
		sem:  make(chan struct{}, opts.Concurrency),
	}
}

// Fetch downloads url to dest. If expectedHash is non-empty the body is
// verified against it (algorithm selected by digest length: 40 hex chars is
// SHA-1, 64 is SHA-256). onProgress, if non-nil, receives 0-100 percentages.
//
// The call is idempotent: when dest already holds content matching
// expectedHash no transfer happens and 100 is reported immediately. On any
// failure dest is left untouched (either absent or the prior valid copy),
// so the call is safe to retry.
func (f *Fetcher) Fetch(ctx context.Context, url, dest, expectedHash string, onProgress func(pct int)) error {
	if expectedHash != "" {
		if _, err := newDigest(expectedHash); err != nil {
			return err
		}
		ok, err := verifyFile(dest, expectedHash)
		if err == nil && ok {
			report(onProgress, 100)
			return nil
		}
	}

	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-f.sem }()

	// Remove a stale destination so a mid-transfer crash cannot be mistaken
	// for a valid prior copy.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("removing stale file %s: %w", dest, err)
		}
	}

	// A mismatch on a freshly downloaded body gets exactly one fresh
	// re-fetch; a second mismatch indicates a corrupted or lying source.
	err := f.download(ctx, url, dest, expectedHash, onProgress)
	if errors.Is(err, ErrChecksum) {
		err = f.download(ctx, url, dest, expectedHash, onProgress)
	}
	return err
}

func (f *Fetcher) download(ctx context.Context, url, dest, expectedHash string, onProgress func(pct int)) error {
	var lastErr error

	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := f.downloadOnce(ctx, url, dest, expectedHash, onProgress)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrServerError):
			lastErr = err
			continue
		case isTransient(err) && ctx.Err() == nil:
			lastErr = err
			continue
		default:
			return err
		}
	}

	return fmt.Errorf("fetch %s failed after %d attempts: %w", url, f.opts.RetryAttempts+1, lastErr)
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, dest, expectedHash string, onProgress func(pct int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dest, err)
	}

	tmpPath := dest + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var digest hash.Hash
	var w io.Writer = tmp
	if expectedHash != "" {
		digest, _ = newDigest(expectedHash)
		w = io.MultiWriter(tmp, digest)
	}

	if err := copyWithProgress(w, resp.Body, resp.ContentLength, onProgress); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if digest != nil {
		got := hex.EncodeToString(digest.Sum(nil))
		if got != expectedHash {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksum, url, expectedHash, got)
		}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %s: %w", dest, err)
	}

	success = true
	report(onProgress, 100)
	return nil
}

// FetchJSON downloads a small JSON document into v, with the same retry
// policy as Fetch but without touching disk or the admission gate.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, v any) error {
	body, err := f.FetchBytes(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing response from %s: %w", url, err)
	}
	return nil
}

// FetchBytes downloads a small document into memory.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		body, err := f.fetchBytesOnce(ctx, url)
		switch {
		case err == nil:
			return body, nil
		case errors.Is(err, ErrServerError), isTransient(err) && ctx.Err() == nil:
			lastErr = err
			continue
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, f.opts.RetryAttempts+1, lastErr)
}

func (f *Fetcher) fetchBytesOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

// backoff waits for an exponentially increasing duration with jitter.
func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	backoff := f.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > f.opts.RetryMaxBackoff {
		backoff = f.opts.RetryMaxBackoff
	}
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, onProgress func(pct int)) error {
	if onProgress == nil || total <= 0 {
		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		return nil
	}

	buf := make([]byte, 64*1024)
	var read int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing file: %w", werr)
			}
			read += int64(n)
			onProgress(int(read * 100 / total))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
	}
}

// newDigest selects the hash algorithm by the hex digest length.
func newDigest(expected string) (hash.Hash, error) {
	switch len(expected) {
	case 40:
		return sha1.New(), nil
	case 64:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %d chars", ErrUnsupportedDigest, len(expected))
	}
}

// verifyFile reports whether path exists and matches the expected digest.
func verifyFile(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	digest, err := newDigest(expected)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(digest, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(digest.Sum(nil)) == expected, nil
}

// VerifyFile reports whether path exists and matches expected.
func VerifyFile(path, expected string) bool {
	ok, err := verifyFile(path, expected)
	return err == nil && ok
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

func isTransient(err error) bool {
	// Network-level failures (refused connections, resets, truncated
	// bodies) surface as url.Error or io errors rather than status codes.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func report(onProgress func(int), pct int) {
	if onProgress != nil {
		onProgress(pct)
	}
}
