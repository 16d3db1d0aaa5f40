// Package bearer implements the bearer-token backend. Tokens arrive in the
// Authorization header or the OAuth-Token cookie and are validated by an
// auth.AuthChain, typically JWT first and API keys second.
package bearer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/tenant"
)

// Rejection messages.
const (
	MsgAPIKeyNotExchanged = "The API key must be exchanged for a bearer token before use"
	MsgMissingToken       = "Bearer token is missing"
	MsgInvalidToken       = "Bearer token is invalid or expired"
)

// Backend authenticates bearer tokens and enforces the tenant check.
type Backend struct {
	chain  *auth.AuthChain
	realm  string
	logger *slog.Logger
}

var _ auth.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(b *Backend) { b.realm = realm }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates a bearer backend over the given authenticators. A request on
// which every authenticator abstains is rejected.
func New(authenticators []auth.Authenticator, opts ...Option) *Backend {
	b := &Backend{
		chain:  &auth.AuthChain{Authenticators: authenticators},
		realm:  "dbgate",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authorize validates the bearer token and, unless bypassTenantCheck is
// set, checks that the caller may access the request's tenant.
func (b *Backend) Authorize(w http.ResponseWriter, r *http.Request, bypassTenantCheck bool) (auth.Principal, bool) {
	if auth.BearerToken(r) == "" {
		if auth.HasAPIKey(r) {
			api.WriteError(w, http.StatusPreconditionFailed, MsgAPIKeyNotExchanged)
			return nil, false
		}
		b.challenge(w, "invalid_request", MsgMissingToken)
		return nil, false
	}

	result := b.chain.Authenticate(r.Context(), r)
	if result.Decision != auth.Yes {
		b.logger.Debug("bearer token rejected", "path", r.URL.Path, "error", result.Err)
		b.challenge(w, "invalid_token", MsgInvalidToken)
		return nil, false
	}

	id := result.Identity
	if !bypassTenantCheck {
		tenantID := tenant.FromContext(r.Context())
		if !id.CanAccess(tenantID) {
			b.logger.Warn("database access denied",
				"user", id.Subject,
				"tenant", tenantID,
				"scheme", id.Scheme,
			)
			api.WriteError(w, http.StatusForbidden, auth.ForbiddenMessage(tenantID))
			return nil, false
		}
	}

	return id, true
}

// GetUser re-validates the bearer token and returns its identity, or nil.
func (b *Backend) GetUser(r *http.Request) auth.Principal {
	result := b.chain.Authenticate(r.Context(), r)
	if result.Decision != auth.Yes || result.Identity == nil {
		return nil
	}
	return result.Identity
}

// GetApprovedDatabases returns the databases granted to p.
func (b *Backend) GetApprovedDatabases(_ context.Context, p auth.Principal) ([]string, error) {
	id, ok := p.(*auth.Identity)
	if !ok || id == nil {
		return nil, nil
	}
	return slices.Clone(id.Databases), nil
}

// Close implements auth.Backend. The backend holds no resources.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) challenge(w http.ResponseWriter, code, msg string) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer realm=%q, error=%q, error_description=%q`, b.realm, code, msg))
	api.WriteError(w, http.StatusUnauthorized, msg)
}
