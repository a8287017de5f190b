package model

import (
	"errors"

	"github.com/google/uuid"
)

// Error kinds. Producers wrap them with context using %w.
var (
	// ErrInvalid marks malformed or missing input. Never retried.
	ErrInvalid = errors.New("invalid")
	// ErrNotFound marks a reference to a participant that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks connectivity or storage failures.
	ErrTransient = errors.New("transient")
)

// ValidIdentity reports whether id is a participant identity in canonical
// form: lowercase, hyphenated, no braces or urn prefix. Identities are
// compared as raw strings everywhere, so aliases of one UUID are rejected.
func ValidIdentity(id string) bool {
	if id == "" {
		return false
	}
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}
