package jre

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soapstonemc/soapstone/internal/sandbox"
)

// extractArchive unpacks a runtime distribution into destDir with the
// common root directory stripped. Zip for the windows family, tar+gzip for
// the rest; the format is chosen by file extension so tests can exercise
// both on any host.
func extractArchive(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	if strings.HasSuffix(archivePath, ".zip") {
		return extractZip(archivePath, destDir)
	}
	return extractTarGz(archivePath, destDir)
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	for _, entry := range r.File {
		rel, ok := stripRoot(entry.Name)
		if !ok || entry.FileInfo().IsDir() {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", entry.Name, err)
		}
		err = writeEntry(destDir, rel, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		rel, ok := stripRoot(hdr.Name)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := sandbox.MkdirAll(destDir, rel, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(destDir, rel, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// Runtime archives link bin/ entries to sibling files; resolve
			// the link target inside the sandbox before creating it.
			target := filepath.Join(filepath.Dir(rel), hdr.Linkname)
			if _, err := sandbox.Resolve(destDir, target); err != nil {
				return fmt.Errorf("symlink %s: %w", hdr.Name, err)
			}
			linkPath, err := sandbox.Resolve(destDir, rel)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
				return err
			}
			_ = os.Remove(linkPath)
			if err := os.Symlink(hdr.Linkname, linkPath); err != nil {
				return fmt.Errorf("symlink %s: %w", hdr.Name, err)
			}
		}
	}
}

func writeEntry(destDir, rel string, r io.Reader, mode os.FileMode) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	if err := sandbox.WriteFile(destDir, rel, content, perm); err != nil {
		return fmt.Errorf("extracting %s: %w", rel, err)
	}
	return nil
}
