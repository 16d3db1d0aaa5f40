// Package memory provides an in-memory storage.CredentialStore for tests and
// single-node deployments. Records are seeded from configuration and lost
// when the process restarts.
package memory

import (
	"context"
	"crypto/subtle"
	"slices"
	"strings"
	"sync"

	"github.com/rhuss/dbgate/pkg/storage"
)

// Store is an in-memory CredentialStore.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*storage.User // lowercased name -> user
	keys      []*storage.APIKey
	databases map[string]struct{}
}

// Ensure Store implements storage.CredentialStore at compile time.
var _ storage.CredentialStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]*storage.User),
		databases: make(map[string]struct{}),
	}
}

// GetUser returns a copy of the named user.
func (s *Store) GetUser(_ context.Context, name string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(name)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(u), nil
}

// SaveUser creates or replaces a user.
func (s *Store) SaveUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[strings.ToLower(u.Name)] = copyUser(u)
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := s.users[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, key)
	return nil
}

// GetAPIKey scans all keys with a constant-time comparison.
func (s *Store) GetAPIKey(_ context.Context, keyHash string) (*storage.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *storage.APIKey
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.KeyHash)) == 1 {
			found = k
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return copyKey(found), nil
}

// SaveAPIKey stores a new key.
func (s *Store) SaveAPIKey(_ context.Context, k *storage.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys {
		if existing.KeyHash == k.KeyHash {
			return storage.ErrConflict
		}
	}
	s.keys = append(s.keys, copyKey(k))
	return nil
}

// ListDatabases returns the registered databases in sorted order.
func (s *Store) ListDatabases(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// AddDatabase registers a tenant database.
func (s *Store) AddDatabase(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.databases[name] = struct{}{}
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func copyUser(u *storage.User) *storage.User {
	c := *u
	c.Databases = slices.Clone(u.Databases)
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func copyKey(k *storage.APIKey) *storage.APIKey {
	c := *k
	c.Databases = slices.Clone(k.Databases)
	c.Roles = slices.Clone(k.Roles)
	return &c
}
