package assets

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func hashOf(content []byte) string {
	h := sha1.Sum(content)
	return hex.EncodeToString(h[:])
}

func TestPutAndHas(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	content := []byte("texture bytes")
	hash := hashOf(content)

	if s.Has(hash) {
		t.Fatal("unexpected hit before Put")
	}
	if err := s.Put(hash, content); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(hash) {
		t.Fatal("expected hit after Put")
	}
}

func TestObjectPathFanOut(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "assets"))
	if err != nil {
		t.Fatal(err)
	}

	hash := "ab12cd34ef0000000000000000000000000000ff"
	got := s.ObjectPath(hash)
	want := filepath.Join(s.Root(), "objects", "ab", hash)
	if got != want {
		t.Errorf("ObjectPath = %s, want %s", got, want)
	}
}

func TestHasRejectsCorruptObject(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("good bytes")
	hash := hashOf(content)
	if err := s.Put(hash, content); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored object in place.
	if err := os.WriteFile(s.ObjectPath(hash), []byte("bad bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if s.Has(hash) {
		t.Error("corrupt object should read as absent")
	}
}

func TestPutWrongHash(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(hashOf([]byte("other")), []byte("content")); err == nil {
		t.Fatal("expected error for hash mismatch")
	}
}
