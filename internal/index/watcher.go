package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notelock/internal/parser"
	"github.com/starford/notelock/internal/storage"
)

// Change kinds reported to an EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

const (
	// settleDelay coalesces the bursts of events editors produce for a
	// single save.
	settleDelay    = 100 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

// EventCallback is called after a watcher-driven index change. protected
// is the marker state just indexed and is always false for deletions.
type EventCallback func(kind, path string, protected bool)

// Watch keeps the index in step with the vault until ctx is cancelled.
// cb (if non-nil) runs after each index mutation; the lock subsystem uses
// it to notice protection markers added or removed outside the server.
//
// Events for a note are collected for settleDelay and applied once, from
// what is on disk at that point. Directories created at runtime are
// watched as they appear. fsnotify reports only the old name of a rename,
// so renames also schedule a full reconciliation.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w := &watcher{
		fs:      fw,
		db:      db,
		store:   store,
		root:    vaultRoot,
		logger:  logger,
		cb:      cb,
		pending: make(map[string]fsnotify.Op),
	}
	if err := w.addTree(vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))
	return w.loop(ctx)
}

type watcher struct {
	fs     *fsnotify.Watcher
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback

	pending    map[string]fsnotify.Op
	settle     *time.Timer
	settleC    <-chan time.Time
	reconcile  *time.Timer
	reconcileC <-chan time.Time
}

func (w *watcher) loop(ctx context.Context) error {
	defer func() {
		if w.settle != nil {
			w.settle.Stop()
		}
		if w.reconcile != nil {
			w.reconcile.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-w.settleC:
			w.flush()

		case <-w.reconcileC:
			w.flush()
			w.reconcileAll()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if storage.Hidden(name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
				return
			}
			w.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
			w.enqueueTree(ev.Name)
			return
		}
	}

	if !storage.IsNote(name) {
		return
	}
	key, err := storage.Key(w.root, ev.Name)
	if err != nil {
		return
	}
	w.pending[key] |= ev.Op
	w.settle, w.settleC = resetTimer(w.settle, settleDelay)
	if ev.Has(fsnotify.Rename) {
		w.reconcile, w.reconcileC = resetTimer(w.reconcile, reconcileDelay)
	}
}

// flush applies every pending note from its current state on disk.
func (w *watcher) flush() {
	for key, op := range w.pending {
		w.apply(key, op)
	}
	clear(w.pending)
}

func (w *watcher) apply(key string, op fsnotify.Op) {
	data, err := w.store.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		indexed, cerr := w.db.GetChecksum(key)
		if cerr != nil || indexed == "" {
			return
		}
		if err := w.db.DeleteNote(key); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", key), slog.String("error", err.Error()))
			return
		}
		w.logger.Debug("watcher: deleted", slog.String("path", key))
		w.notify(ChangeDeleted, key, false)
		return
	}
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", key), slog.String("error", err.Error()))
		return
	}

	res, err := IndexFile(w.db, key, data)
	if err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", key), slog.String("error", err.Error()))
		return
	}
	kind := ChangeUpdated
	if op.Has(fsnotify.Create) {
		kind = ChangeCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", key), slog.String("op", kind))
	w.notify(kind, key, res.Protected())
}

// reconcileAll catches up on changes whose events carried the wrong name.
func (w *watcher) reconcileAll() {
	err := reconcile(w.db, w.store, w.logger, reconcileHooks{
		indexed: func(key string, res *parser.Result, created bool) {
			kind := ChangeUpdated
			if created {
				kind = ChangeCreated
			}
			w.notify(kind, key, res.Protected())
		},
		removed: func(key string) { w.notify(ChangeDeleted, key, false) },
	})
	if err != nil {
		w.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
	}
}

func (w *watcher) notify(kind, key string, protected bool) {
	if w.cb != nil {
		w.cb(kind, key, protected)
	}
}

// enqueueTree queues every note already inside a newly created directory.
func (w *watcher) enqueueTree(dir string) {
	_ = walkVisible(dir, func(p string, d fs.DirEntry) error {
		if d.IsDir() || !storage.IsNote(d.Name()) {
			return nil
		}
		if key, err := storage.Key(w.root, p); err == nil {
			w.pending[key] |= fsnotify.Create
		}
		return nil
	})
	w.settle, w.settleC = resetTimer(w.settle, settleDelay)
}

// addTree watches dir and every visible directory below it.
func (w *watcher) addTree(dir string) error {
	return walkVisible(dir, func(p string, d fs.DirEntry) error {
		if d.IsDir() {
			return w.fs.Add(p)
		}
		return nil
	})
}

// walkVisible walks root, skipping hidden directories below it.
func walkVisible(root string, fn func(p string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != root && storage.Hidden(d.Name()) {
			return filepath.SkipDir
		}
		return fn(p, d)
	})
}

func resetTimer(t *time.Timer, d time.Duration) (*time.Timer, <-chan time.Time) {
	if t == nil {
		t = time.NewTimer(d)
	} else {
		t.Reset(d)
	}
	return t, t.C
}
