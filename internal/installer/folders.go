package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// folderSafe matches characters allowed in instance folder names.
var folderSafe = regexp.MustCompile(`[^a-zA-Z0-9 ._-]`)

// suffixPattern extracts the numeric suffix from "name_(n)" siblings.
var suffixPattern = regexp.MustCompile(`^_\((\d+)\)$`)

// SanitizeFolderName reduces a display name to a filesystem-safe folder
// name. Disallowed characters are dropped; an empty result falls back to a
// fixed name.
func SanitizeFolderName(name string) string {
	out := folderSafe.ReplaceAllString(name, "")
	out = strings.TrimSpace(out)
	out = strings.Trim(out, ".")
	if out == "" {
		return "instance"
	}
	return out
}

// AllocateFolder creates a directory for the sanitized name under parent.
// On a name collision among existing siblings it appends "_({n})" where n
// is one past the highest suffix already in use, so a previously deleted
// middle entry is never reused.
func AllocateFolder(parent, name string) (string, error) {
	base := SanitizeFolderName(name)

	entries, err := os.ReadDir(parent)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading instances directory: %w", err)
	}

	taken := false
	highest := 0
	for _, e := range entries {
		en := e.Name()
		if en == base {
			taken = true
			continue
		}
		if rest, ok := strings.CutPrefix(en, base); ok {
			if m := suffixPattern.FindStringSubmatch(rest); m != nil {
				taken = true
				if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
					highest = n
				}
			}
		}
	}

	folder := base
	if taken {
		folder = fmt.Sprintf("%s_(%d)", base, highest+1)
	}

	if err := os.MkdirAll(filepath.Join(parent, folder), 0755); err != nil {
		return "", fmt.Errorf("creating instance folder: %w", err)
	}
	return folder, nil
}
