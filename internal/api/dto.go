package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notelock/internal/guard"
	"github.com/starford/notelock/internal/noteservice"
	"github.com/starford/notelock/internal/workspace"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// Validate checks the request.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// Validate checks the request.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path      string `json:"path" example:"notes/hello.md" validate:"required"`
	Title     string `json:"title" example:"Hello" validate:"required"`
	Snippet   string `json:"snippet" example:"...matched text..."`
	Protected bool   `json:"protected"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// PathRequest names a note.
type PathRequest struct {
	Path string `json:"path" example:"diary/2026-01-01.md"`
}

// Validate checks the request.
func (r PathRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// PasswordRequest names a note and carries a password candidate.
type PasswordRequest struct {
	Path     string `json:"path" example:"diary/2026-01-01.md"`
	Password string `json:"password"`
}

// Validate checks the request.
func (r PasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// PolicyBody is the wire form of guard.Policy.
type PolicyBody struct {
	IdleMinutes        int  `json:"idle_minutes" example:"5"`
	AutoEncryptOnClose bool `json:"auto_encrypt_on_close"`
}

// Validate checks the request.
func (p PolicyBody) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.IdleMinutes, validation.Min(0), validation.Max(24*60)),
	)
}

func (p PolicyBody) policy() guard.Policy {
	return guard.Policy{
		IdleTimeout:        time.Duration(p.IdleMinutes) * time.Minute,
		AutoEncryptOnClose: p.AutoEncryptOnClose,
	}
}

func policyBody(p guard.Policy) PolicyBody {
	return PolicyBody{
		IdleMinutes:        int(p.IdleTimeout / time.Minute),
		AutoEncryptOnClose: p.AutoEncryptOnClose,
	}
}

// ViewResponse reports a view change and how the guard resolved the note
// now in front.
type ViewResponse struct {
	View    *workspace.View `json:"view,omitempty"`
	Active  string          `json:"active"`
	Outcome guard.Outcome   `json:"outcome"`
	Lock    *guard.Status   `json:"lock,omitempty"`
}

// LockResponse reports the result of a lock action.
type LockResponse struct {
	Outcome guard.Outcome `json:"outcome"`
	Lock    guard.Status  `json:"lock"`
}
