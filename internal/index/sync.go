package index

import (
	"log/slog"

	"github.com/starford/notelock/internal/checksum"
	"github.com/starford/notelock/internal/parser"
	"github.com/starford/notelock/internal/storage"
)

// Sync brings the index up to date with the vault. It runs once at start
// before the watcher takes over.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	return reconcile(db, store, logger, reconcileHooks{})
}

// reconcileHooks observe the changes a reconcile pass makes.
type reconcileHooks struct {
	indexed func(key string, res *parser.Result, created bool)
	removed func(key string)
}

// reconcile indexes every note whose checksum differs from the index and
// drops index rows whose file no longer exists.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, hooks reconcileHooks) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}

	for _, m := range metas {
		sum, known := indexed[m.Key]
		delete(indexed, m.Key)
		if known && sum == m.Checksum {
			continue
		}

		data, err := store.Read(m.Key)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Key), slog.String("error", err.Error()))
			continue
		}
		res, err := IndexFile(db, m.Key, data)
		if err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", m.Key))
		if hooks.indexed != nil {
			hooks.indexed(m.Key, res, !known)
		}
	}

	// What is left was indexed but is gone from disk.
	for key := range indexed {
		if err := db.DeleteNote(key); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", key), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", key))
		if hooks.removed != nil {
			hooks.removed(key)
		}
	}
	return nil
}

// IndexFile parses data, upserts it, and returns the parse result so
// callers can read the protection marker without parsing twice.
func IndexFile(db NoteIndex, path string, data []byte) (*parser.Result, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	err = db.UpsertNote(NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      tags,
		Protected: res.Protected(),
	}, res.Body)
	if err != nil {
		return nil, err
	}
	return res, nil
}
