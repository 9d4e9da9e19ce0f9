package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NoteExt is the extension of every vault note.
const NoteExt = ".md"

// Hidden reports whether a file or directory name is ignored by the vault.
// Editor state (.obsidian, .git) and in-flight atomic writes live there.
func Hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsNote reports whether name is a note file the vault tracks.
func IsNote(name string) bool {
	return strings.HasSuffix(name, NoteExt) && !Hidden(name)
}

// Key turns an absolute file path under root into a note key: relative,
// slash-separated and clean. Keys are what the index, the guard and the
// API use to name a note.
func Key(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: key for %s: %w", abs, err)
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}

// underHidden reports whether any segment of a slash-separated key is hidden.
func underHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if Hidden(seg) {
			return true
		}
	}
	return false
}
