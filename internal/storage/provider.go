// Package storage defines the vault file-system abstraction. Notes are
// addressed by key: a slash-separated path relative to the vault root.
package storage

import "time"

// Entry describes one note found by List.
type Entry struct {
	Key      string
	Checksum string
	ModTime  time.Time
}

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every note under dir.
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the note at key.
	Read(key string) ([]byte, error)
	// Write atomically replaces the note at key.
	Write(key string, content []byte) error
	// Delete removes the note at key.
	Delete(key string) error
	// Exists reports whether a note exists at key.
	Exists(key string) bool
}
