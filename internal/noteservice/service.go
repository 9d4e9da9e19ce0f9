package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/notelock/internal/apperr"
	"github.com/starford/notelock/internal/checksum"
	"github.com/starford/notelock/internal/index"
	"github.com/starford/notelock/internal/parser"
	"github.com/starford/notelock/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Protected   bool           `json:"protected"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	Protected bool      `json:"protected"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Gate reports whether a protected note was unlocked this session.
type Gate interface {
	IsAccessedThisSession(path string) bool
}

// Service coordinates storage and index operations. Protected notes are
// only readable or writable while the gate reports them unlocked.
type Service struct {
	store storage.Provider
	db    index.NoteIndex
	gate  Gate
}

// NewService creates a new note service. A nil gate locks every
// protected note.
func NewService(store storage.Provider, db index.NoteIndex, gate Gate) *Service {
	return &Service{store: store, db: db, gate: gate}
}

// GetNote reads a note from storage. It returns apperr.ErrLocked for a
// protected note that is not unlocked.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(path, res); err != nil {
		return nil, err
	}
	return buildNoteDetail(path, data, res), nil
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if s.store.Exists(path) {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	res, err := index.IndexFile(s.db, path, content)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(path, content, res), nil
}

// UpdateNote writes updated content with optimistic concurrency. Editing
// an unlocked protected note keeps its marker; removing it goes through
// the unprotect flow.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	prev, err := parser.Parse(existing)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(path, prev); err != nil {
		return nil, err
	}
	if !checksum.Matches(ifMatch, checksum.Sum(existing)) {
		return nil, apperr.ErrConflict
	}

	if prev.Protected() {
		next, err := parser.Parse(content)
		if err != nil {
			return nil, err
		}
		if !next.Protected() {
			content, err = parser.SetField(content, parser.ProtectedKey, parser.ProtectedValue)
			if err != nil {
				return nil, fmt.Errorf("noteservice: keep marker: %w", err)
			}
		}
	}

	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	res, err := index.IndexFile(s.db, path, content)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(path, content, res), nil
}

// DeleteNote removes a note from storage and index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	data, err := s.read(path)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	if err := s.checkAccess(path, res); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	return s.db.DeleteNote(path)
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset, tag, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			Protected: r.Protected,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates search to the index. Protected notes never carry a
// snippet.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(results), nil
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Service) checkAccess(path string, res *parser.Result) error {
	if !res.Protected() {
		return nil
	}
	if s.gate != nil && s.gate.IsAccessedThisSession(path) {
		return nil
	}
	return apperr.ErrLocked
}

func buildNoteDetail(path string, data []byte, res *parser.Result) *NoteDetail {
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Protected:   res.Protected(),
		UpdatedAt:   time.Now(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Exists reports whether a note exists at path.
func (s *Service) Exists(path string) bool {
	return s.store.Exists(path)
}
