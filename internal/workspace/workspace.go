// Package workspace tracks the open note views of the running session
// and which one is active.
package workspace

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/notelock/internal/apperr"
)

// View is one open pane showing a note.
type View struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Active bool   `json:"active"`
}

// Change reports how a mutation moved the active note. Changed is true
// whenever the active view or its path changed; Active is the note now
// in front ("" when no view is open).
type Change struct {
	Active  string
	Changed bool
}

// Workspace holds the views. Recency decides which view becomes active
// when the active one is closed.
type Workspace struct {
	mu     sync.Mutex
	views  map[string]string // id -> path
	recent []string          // view ids, most recently active last
}

// New returns an empty workspace.
func New() *Workspace {
	return &Workspace{views: make(map[string]string)}
}

// Open shows path in a new view and makes it active.
func (w *Workspace) Open(path string) (View, Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.activeLocked()
	id := uuid.NewString()
	w.views[id] = path
	w.recent = append(w.recent, id)
	return View{ID: id, Path: path, Active: true}, w.changeLocked(before, true)
}

// Navigate points an existing view at another note.
func (w *Workspace) Navigate(id, path string) (View, Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.views[id]; !ok {
		return View{}, Change{}, fmt.Errorf("workspace: view %s: %w", id, apperr.ErrNotFound)
	}
	before := w.activeLocked()
	w.views[id] = path
	isActive := w.activeIDLocked() == id
	return View{ID: id, Path: path, Active: isActive}, w.changeLocked(before, isActive), nil
}

// Activate brings a view to the front.
func (w *Workspace) Activate(id string) (View, Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, ok := w.views[id]
	if !ok {
		return View{}, Change{}, fmt.Errorf("workspace: view %s: %w", id, apperr.ErrNotFound)
	}
	before := w.activeLocked()
	wasActive := w.activeIDLocked() == id
	w.touchLocked(id)
	return View{ID: id, Path: path, Active: true}, w.changeLocked(before, !wasActive), nil
}

// Close removes a view. Closing a background view leaves the active note
// unchanged.
func (w *Workspace) Close(id string) (Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.views[id]; !ok {
		return Change{}, fmt.Errorf("workspace: view %s: %w", id, apperr.ErrNotFound)
	}
	before := w.activeLocked()
	wasActive := w.activeIDLocked() == id
	w.removeLocked(id)
	return w.changeLocked(before, wasActive), nil
}

// CloseActive closes the active view if it shows key. closed is the id of
// the removed view, or "" if nothing was closed.
func (w *Workspace) CloseActive(key string) (closed string, ch Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.activeIDLocked()
	if id == "" || w.views[id] != key {
		return "", Change{Active: w.activeLocked()}
	}
	w.removeLocked(id)
	return id, w.changeLocked(key, true)
}

// CloseKey closes every view showing key and returns the closed ids.
func (w *Workspace) CloseKey(key string) ([]string, Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.activeLocked()
	wasActive := before == key && before != ""
	var closed []string
	for _, id := range slices.Clone(w.recent) {
		if w.views[id] == key {
			w.removeLocked(id)
			closed = append(closed, id)
		}
	}
	return closed, w.changeLocked(before, wasActive)
}

// OpenKeys returns the distinct notes shown in any view.
func (w *Workspace) OpenKeys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]struct{}, len(w.views))
	out := make([]string, 0, len(w.views))
	for _, p := range w.views {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsOpen reports whether any view shows key.
func (w *Workspace) IsOpen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.views {
		if p == key {
			return true
		}
	}
	return false
}

// ActivePath returns the note in the active view, or "".
func (w *Workspace) ActivePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeLocked()
}

// Views lists every view, oldest activation first.
func (w *Workspace) Views() []View {
	w.mu.Lock()
	defer w.mu.Unlock()

	active := w.activeIDLocked()
	out := make([]View, 0, len(w.recent))
	for _, id := range w.recent {
		out = append(out, View{ID: id, Path: w.views[id], Active: id == active})
	}
	return out
}

// View returns a single view.
func (w *Workspace) View(id string) (View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.views[id]
	if !ok {
		return View{}, fmt.Errorf("workspace: view %s: %w", id, apperr.ErrNotFound)
	}
	return View{ID: id, Path: path, Active: w.activeIDLocked() == id}, nil
}

func (w *Workspace) activeIDLocked() string {
	if len(w.recent) == 0 {
		return ""
	}
	return w.recent[len(w.recent)-1]
}

func (w *Workspace) activeLocked() string {
	return w.views[w.activeIDLocked()]
}

func (w *Workspace) touchLocked(id string) {
	w.recent = slices.DeleteFunc(w.recent, func(v string) bool { return v == id })
	w.recent = append(w.recent, id)
}

func (w *Workspace) removeLocked(id string) {
	delete(w.views, id)
	w.recent = slices.DeleteFunc(w.recent, func(v string) bool { return v == id })
}

// changeLocked builds the Change for a mutation. frontMoved is true when
// the active view itself was replaced, navigated or closed, which counts
// as a change even if the same note ends up in front.
func (w *Workspace) changeLocked(before string, frontMoved bool) Change {
	after := w.activeLocked()
	return Change{Active: after, Changed: frontMoved || after != before}
}
