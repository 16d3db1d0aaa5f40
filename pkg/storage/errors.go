package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a user, API key or database does not exist.
	ErrNotFound = errors.New("credential not found")

	// ErrConflict is returned when a record with the same key already exists.
	ErrConflict = errors.New("credential already exists")
)
