package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveInside(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, filepath.Join("natives", "liblwjgl.so"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	realRoot, _ := filepath.EvalSymlinks(root)
	want := filepath.Join(realRoot, "natives", "liblwjgl.so")
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	root := t.TempDir()
	cases := []string{
		"../outside",
		"../../etc/passwd",
		filepath.Join("natives", "..", "..", "escape"),
	}
	for _, rel := range cases {
		if _, err := Resolve(root, rel); err == nil {
			t.Errorf("Resolve(%q) should fail", rel)
		}
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "sneaky")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := Resolve(root, filepath.Join("sneaky", "file")); err == nil {
		t.Error("symlinked escape should fail")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	root := t.TempDir()

	if err := WriteFile(root, filepath.Join("versions", "1.20.1", "1.20.1.json"), []byte(`{}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "versions", "1.20.1", "1.20.1.json"))
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("got %q", string(data))
	}

	// Overwrite goes through the same rename path.
	if err := WriteFile(root, filepath.Join("versions", "1.20.1", "1.20.1.json"), []byte(`{"id":"1.20.1"}`), 0644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	// No temp residue.
	entries, err := os.ReadDir(filepath.Join(root, "versions", "1.20.1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, found %d", len(entries))
	}
}

func TestWriteFileRejectsEscape(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(root, "../evil", []byte("x"), 0644); err == nil {
		t.Fatal("expected error")
	}
}
