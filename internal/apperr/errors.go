// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrLocked means the note is protected and was not unlocked this session.
	ErrLocked = errors.New("locked")
	// ErrNoPassword means no password has been configured.
	ErrNoPassword = errors.New("no password configured")
	// ErrWrongPassword means the supplied password did not match.
	ErrWrongPassword = errors.New("wrong password")
	// ErrNoChallenge means no password prompt is outstanding for the note.
	ErrNoChallenge = errors.New("no pending password challenge")
	// ErrStaleChallenge means the prompt was abandoned before the answer was checked.
	ErrStaleChallenge = errors.New("password challenge no longer current")
)
