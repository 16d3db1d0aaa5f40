package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// User is an account checked by the integrated-auth backend.
type User struct {
	Name string

	// PasswordHash is a bcrypt hash of the password.
	PasswordHash string

	// Databases lists granted tenant databases. "*" grants all of them.
	Databases []string

	Roles []string
}

// APIKey is a bearer credential checked by the bearer backend. Only the
// SHA-256 hash of the key is stored.
type APIKey struct {
	Name      string
	KeyHash   string
	Databases []string
	Roles     []string
}

// CredentialStore persists users, API keys and the set of tenant databases.
type CredentialStore interface {
	// GetUser returns the user with the given name (case-insensitive).
	GetUser(ctx context.Context, name string) (*User, error)

	// SaveUser creates or replaces a user.
	SaveUser(ctx context.Context, u *User) error

	// DeleteUser removes a user. Returns ErrNotFound if absent.
	DeleteUser(ctx context.Context, name string) error

	// GetAPIKey returns the key whose hash equals keyHash.
	GetAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// SaveAPIKey creates a key. Returns ErrConflict if the hash exists.
	SaveAPIKey(ctx context.Context, k *APIKey) error

	// ListDatabases returns every tenant database name, sorted.
	ListDatabases(ctx context.Context) ([]string, error)

	// AddDatabase registers a tenant database. Adding an existing name is a no-op.
	AddDatabase(ctx context.Context, name string) error

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// HashAPIKey returns the hex-encoded SHA-256 hash used to look up raw keys.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
