// Package verifier checks candidate passwords against the configured
// bcrypt hash.
package verifier

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost used by Hash.
const Cost = bcrypt.DefaultCost

// ErrEmptyPassword is returned by Hash for an empty password.
var ErrEmptyPassword = errors.New("verifier: empty password")

// Bcrypt verifies passwords against a single stored hash. The zero value
// has no password configured.
type Bcrypt struct {
	hash []byte
}

// New wraps a bcrypt hash. An empty hash means no password is configured.
func New(hash string) (*Bcrypt, error) {
	if hash == "" {
		return &Bcrypt{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("verifier: invalid hash: %w", err)
	}
	return &Bcrypt{hash: []byte(hash)}, nil
}

// Configured reports whether a password hash is set.
func (b *Bcrypt) Configured() bool {
	return len(b.hash) > 0
}

// Verify reports whether candidate matches. It is slow on purpose and
// always false when no password is configured.
func (b *Bcrypt) Verify(candidate string) bool {
	if !b.Configured() {
		return false
	}
	return bcrypt.CompareHashAndPassword(b.hash, []byte(candidate)) == nil
}

// Hash returns the bcrypt hash for password, for use in configuration.
func Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", fmt.Errorf("verifier: hash: %w", err)
	}
	return string(h), nil
}
