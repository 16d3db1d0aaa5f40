// Package integrated implements the integrated-auth backend: HTTP Basic
// credentials checked against the credential store, plus configurable
// anonymous access.
package integrated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/storage"
	"github.com/rhuss/dbgate/pkg/tenant"
)

// Scheme is the authentication type reported for integrated identities.
const Scheme = "Basic"

// Rejection messages.
const (
	MsgAuthRequired       = "Authentication is required"
	MsgInvalidCredentials = "Invalid user name or password"
	MsgStoreUnavailable   = "Credential store is unavailable"
)

// AnonymousAccess controls what requests without credentials may do.
type AnonymousAccess string

const (
	// AnonymousNone requires credentials for every request.
	AnonymousNone AnonymousAccess = "None"

	// AnonymousGet allows read-only methods without credentials.
	AnonymousGet AnonymousAccess = "Get"

	// AnonymousAll allows every request without credentials.
	AnonymousAll AnonymousAccess = "All"
)

// ParseAnonymousAccess parses a mode name case-insensitively. The empty
// string yields AnonymousNone.
func ParseAnonymousAccess(s string) (AnonymousAccess, error) {
	for _, m := range []AnonymousAccess{AnonymousNone, AnonymousGet, AnonymousAll} {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	if s == "" {
		return AnonymousNone, nil
	}
	return "", fmt.Errorf("unknown anonymous access mode %q", s)
}

// dummyHash is compared against when the user does not exist, so unknown
// names cost the same bcrypt work as wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("dbgate-unknown-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generating dummy bcrypt hash: %v", err))
	}
	return h
})

// UserStore is the subset of storage.CredentialStore used by the backend.
type UserStore interface {
	GetUser(ctx context.Context, name string) (*storage.User, error)
}

// Backend checks HTTP Basic credentials.
type Backend struct {
	users     UserStore
	realm     string
	anonymous AnonymousAccess
	logger    *slog.Logger

	compare func(hash, password []byte) error
}

var _ auth.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(b *Backend) { b.realm = realm }
}

// WithAnonymousAccess sets the anonymous access mode.
func WithAnonymousAccess(mode AnonymousAccess) Option {
	return func(b *Backend) { b.anonymous = mode }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates an integrated-auth backend over users.
func New(users UserStore, opts ...Option) *Backend {
	b := &Backend{
		users:     users,
		realm:     "dbgate",
		anonymous: AnonymousNone,
		logger:    slog.Default(),
		compare:   bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authorize checks Basic credentials, or admits the request anonymously when
// the access mode allows it. Anonymous requests resolve no principal.
func (b *Backend) Authorize(w http.ResponseWriter, r *http.Request, bypassTenantCheck bool) (auth.Principal, bool) {
	name, password, ok := r.BasicAuth()
	if !ok {
		if b.allowsAnonymous(r.Method) {
			return nil, true
		}
		b.challenge(w, MsgAuthRequired)
		return nil, false
	}

	id, err := b.verify(r.Context(), name, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			b.logger.Debug("basic credentials rejected", "user", name, "path", r.URL.Path)
			b.challenge(w, MsgInvalidCredentials)
			return nil, false
		}
		b.logger.Error("credential lookup failed", "user", name, "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, MsgStoreUnavailable)
		return nil, false
	}

	if !bypassTenantCheck {
		tenantID := tenant.FromContext(r.Context())
		if !id.CanAccess(tenantID) {
			b.logger.Warn("database access denied", "user", id.Subject, "tenant", tenantID)
			api.WriteError(w, http.StatusForbidden, auth.ForbiddenMessage(tenantID))
			return nil, false
		}
	}

	return id, true
}

// GetUser returns the identity behind valid Basic credentials, or nil.
func (b *Backend) GetUser(r *http.Request) auth.Principal {
	name, password, ok := r.BasicAuth()
	if !ok {
		return nil
	}
	id, err := b.verify(r.Context(), name, password)
	if err != nil {
		return nil
	}
	return id
}

// GetApprovedDatabases returns the databases granted to p. Anonymous callers
// get every database when anonymous access is enabled. Single-use snapshots
// taken from a Basic identity are looked up by name; any other principal
// gets nothing.
func (b *Backend) GetApprovedDatabases(ctx context.Context, p auth.Principal) ([]string, error) {
	if p == nil {
		if b.anonymous == AnonymousNone {
			return nil, nil
		}
		return []string{"*"}, nil
	}
	if id, ok := p.(*auth.Identity); ok {
		if id == nil {
			return nil, nil
		}
		return slices.Clone(id.Databases), nil
	}
	if snap, ok := p.(*auth.Snapshot); !ok || snap.IssuedBy() != Scheme {
		return nil, nil
	}

	u, err := b.users.GetUser(ctx, p.Name())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up user %q: %w", p.Name(), err)
	}
	return u.Databases, nil
}

// Close implements auth.Backend. The store is owned and closed by the caller.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) verify(ctx context.Context, name, password string) (*auth.Identity, error) {
	u, err := b.users.GetUser(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = b.compare(dummyHash(), []byte(password))
			return nil, auth.ErrUnauthenticated
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if err := b.compare([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, auth.ErrUnauthenticated
	}
	return &auth.Identity{
		Subject:   u.Name,
		Scheme:    Scheme,
		Roles:     u.Roles,
		Databases: u.Databases,
	}, nil
}

func (b *Backend) allowsAnonymous(method string) bool {
	switch b.anonymous {
	case AnonymousAll:
		return true
	case AnonymousGet:
		return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
	}
	return false
}

func (b *Backend) challenge(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, b.realm))
	api.WriteError(w, http.StatusUnauthorized, msg)
}
