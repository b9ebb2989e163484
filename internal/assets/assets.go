// Package assets manages the shared content-addressed object store used by
// every installation. Objects are stored by their SHA-1 hash under a
// two-level fan-out directory, mirroring the layout of the remote object
// endpoint, and are verified on retrieval.
package assets

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store provides content-addressed storage for shared asset objects.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir. The objects directory is created
// if it does not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0755); err != nil {
		return nil, fmt.Errorf("creating assets directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the assets root directory (the value substituted for the
// assets-root launch placeholder).
func (s *Store) Root() string {
	return s.root
}

// ObjectPath returns the on-disk path for an object hash:
// <root>/objects/<hash[0:2]>/<hash>.
func (s *Store) ObjectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash)
}

// IndexPath returns the on-disk path for an asset index document.
func (s *Store) IndexPath(indexID string) string {
	return filepath.Join(s.root, "indexes", indexID+".json")
}

// Has reports whether the object exists locally and its content still
// matches its hash. A corrupt object reads as absent so it gets re-fetched.
func (s *Store) Has(hash string) bool {
	f, err := os.Open(s.ObjectPath(hash))
	if err != nil {
		return false
	}
	defer f.Close()

	digest := sha1.New()
	if _, err := io.Copy(digest, f); err != nil {
		return false
	}
	return hex.EncodeToString(digest.Sum(nil)) == hash
}

// Put stores content under its hash, verifying the hash first. Storing an
// object that already exists is a no-op.
func (s *Store) Put(hash string, content []byte) error {
	sum := sha1.Sum(content)
	if hex.EncodeToString(sum[:]) != hash {
		return fmt.Errorf("content does not match hash %s", hash)
	}

	path := s.ObjectPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("writing object %s: %w", hash, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming object %s: %w", hash, err)
	}
	return nil
}
