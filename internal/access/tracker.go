// Package access tracks which protected notes were unlocked during the
// running session. Nothing here is persisted.
package access

import (
	"sort"
	"sync"
)

type record struct {
	verified  bool // password supplied this session
	temporary bool // unlocked and subject to idle expiry
}

// Tracker is the single source of truth for "may this note be viewed
// without prompting again". Unknown keys read as locked.
//
// The orchestrator is the only writer; the mutex makes synchronous reads
// from request handlers safe.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]record)}
}

// MarkTemporaryAccess sets both flags for key.
func (t *Tracker) MarkTemporaryAccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[key] = record{verified: true, temporary: true}
}

// IsTemporaryAccess reports whether key is inside its idle window.
func (t *Tracker) IsTemporaryAccess(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[key].temporary
}

// IsAccessedThisSession reports whether the password was supplied for key.
func (t *Tracker) IsAccessedThisSession(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[key].verified
}

// ClearAccess drops both flags for key. Clearing an unknown key is a no-op.
func (t *Tracker) ClearAccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

// ClearAll forgets every key.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.records)
}

// ListTemporaryAccess returns every key currently inside its idle window,
// sorted for stable output.
func (t *Tracker) ListTemporaryAccess() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.records))
	for k, r := range t.records {
		if r.temporary {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
