// Package apikey provides an API key authenticator that validates bearer
// tokens against the credential store. Keys are looked up by their SHA-256
// hash; plaintext keys are never stored.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/storage"
)

// Scheme is the authentication type reported for API key identities.
const Scheme = "api-key"

// KeyStore is the subset of storage.CredentialStore used for key lookup.
type KeyStore interface {
	GetAPIKey(ctx context.Context, keyHash string) (*storage.APIKey, error)
}

// Authenticator validates bearer tokens against a key store.
type Authenticator struct {
	keys KeyStore
}

// New creates an API key authenticator backed by keys.
func New(keys KeyStore) *Authenticator {
	return &Authenticator{keys: keys}
}

// Authenticate hashes the bearer token and looks it up.
// Returns Yes if found, No if a token is present but unknown,
// Abstain if the request carries no bearer token.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	token := auth.BearerToken(r)
	if token == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	key, err := a.keys.GetAPIKey(ctx, storage.HashAPIKey(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
		}
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("looking up api key: %w", err)}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:   key.Name,
			Scheme:    Scheme,
			Databases: key.Databases,
			Roles:     key.Roles,
		},
	}
}
