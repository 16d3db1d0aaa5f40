package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	// The chain continues to the next authenticator. A chain on which every
	// authenticator abstains rejects the request.
	Abstain
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No
}

// Identity represents a caller authenticated by one of the backends.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string

	// Scheme names the mechanism that produced the identity ("Bearer",
	// "api-key", "Basic", ...).
	Scheme string

	// Roles lists role memberships checked by IsInRole.
	Roles []string

	// Databases lists the tenant databases granted to the caller.
	// The wildcard "*" grants every database.
	Databases []string

	// Scopes lists the authorization scopes granted.
	Scopes []string

	// Metadata carries backend-specific data.
	Metadata map[string]string
}

// Name implements Principal.
func (id *Identity) Name() string {
	if id == nil {
		return ""
	}
	return id.Subject
}

// AuthenticationType implements Principal.
func (id *Identity) AuthenticationType() string {
	if id == nil {
		return ""
	}
	return id.Scheme
}

// IsAuthenticated implements Principal.
func (id *Identity) IsAuthenticated() bool {
	return id != nil && id.Subject != ""
}

// IsInRole implements Principal. Role names compare case-insensitively.
func (id *Identity) IsInRole(role string) bool {
	if id == nil {
		return false
	}
	return slices.ContainsFunc(id.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// CanAccess reports whether the identity was granted the given tenant.
func (id *Identity) CanAccess(tenantID string) bool {
	if id == nil {
		return false
	}
	for _, db := range id.Databases {
		if db == "*" || strings.EqualFold(db, tenantID) {
			return true
		}
	}
	return false
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order using three-outcome voting.
type AuthChain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator
}

// Authenticate runs the chain. Stops on the first Yes or No.
// If all abstain, the request is rejected.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}
