// Package protection reads and writes the frontmatter marker that puts a
// note behind the vault password.
package protection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/notelock/internal/apperr"
	"github.com/starford/notelock/internal/index"
	"github.com/starford/notelock/internal/parser"
	"github.com/starford/notelock/internal/storage"
)

// Checker answers whether a note is protected. Reads go to disk; the
// cache serves callers that must not block, such as list and search
// rendering.
type Checker struct {
	store  storage.Provider
	db     index.NoteIndex
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]bool
}

// New creates a Checker and primes its cache from the index.
func New(store storage.Provider, db index.NoteIndex, logger *slog.Logger) (*Checker, error) {
	paths, err := db.ProtectedPaths()
	if err != nil {
		return nil, fmt.Errorf("protection: prime cache: %w", err)
	}
	cache := make(map[string]bool, len(paths))
	for p := range paths {
		cache[p] = true
	}
	return &Checker{store: store, db: db, logger: logger, cache: cache}, nil
}

// IsProtected reads the note and reports whether it carries the marker.
func (c *Checker) IsProtected(_ context.Context, key string) (bool, error) {
	data, err := c.read(key)
	if err != nil {
		return false, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return false, fmt.Errorf("protection: parse %s: %w", key, err)
	}
	protected := res.Protected()
	c.set(key, protected)
	return protected, nil
}

// IsProtectedCached returns the last known protection state without I/O.
func (c *Checker) IsProtectedCached(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[key]
}

// MarkProtected writes the marker into the note's frontmatter.
func (c *Checker) MarkProtected(_ context.Context, key string) error {
	return c.edit(key, true, func(data []byte) ([]byte, error) {
		return parser.SetField(data, parser.ProtectedKey, parser.ProtectedValue)
	})
}

// RemoveProtection deletes the marker, leaving the note permanently
// readable.
func (c *Checker) RemoveProtection(_ context.Context, key string) error {
	return c.edit(key, false, func(data []byte) ([]byte, error) {
		return parser.RemoveField(data, parser.ProtectedKey)
	})
}

// Refresh updates the cache from a watcher event.
func (c *Checker) Refresh(kind, path string, protected bool) {
	if kind == index.ChangeDeleted {
		c.mu.Lock()
		delete(c.cache, path)
		c.mu.Unlock()
		return
	}
	c.set(path, protected)
}

func (c *Checker) edit(key string, protected bool, fn func([]byte) ([]byte, error)) error {
	data, err := c.read(key)
	if err != nil {
		return err
	}
	out, err := fn(data)
	if err != nil {
		return fmt.Errorf("protection: edit %s: %w", key, err)
	}
	if err := c.store.Write(key, out); err != nil {
		return fmt.Errorf("protection: write %s: %w", key, err)
	}
	if _, err := index.IndexFile(c.db, key, out); err != nil {
		// The file is authoritative; the watcher will reindex it.
		c.logger.Warn("protection: reindex failed", slog.String("path", key), slog.String("error", err.Error()))
	}
	c.set(key, protected)
	c.logger.Info("protection: marker updated", slog.String("path", key), slog.Bool("protected", protected))
	return nil
}

func (c *Checker) read(key string) ([]byte, error) {
	data, err := c.store.Read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("protection: %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("protection: read %s: %w", key, err)
	}
	return data, nil
}

func (c *Checker) set(key string, protected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if protected {
		c.cache[key] = true
	} else {
		delete(c.cache, key)
	}
}
