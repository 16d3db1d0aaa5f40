// Package mixedmode implements the request authorizer that picks, per
// request, which authentication mechanism applies.
//
// Decision order, first match wins:
//  1. tenant-relative URL on the never-secret allowlist: allowed
//  2. CORS preflight (OPTIONS) with CORS configured: allowed
//  3. Single-Use-Auth-Token header: single-use token redemption only
//  4. Has-Api-Key: True, OAuth-Token cookie, or Authorization: Bearer: bearer backend
//  5. anything else: integrated-auth backend
//
// Backends receive bypassTenantCheck=true for URLs on the ignore-tenant
// allowlist.
package mixedmode

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/auth/onetime"
	"github.com/rhuss/dbgate/pkg/observability"
	"github.com/rhuss/dbgate/pkg/tenant"
)

// Messages written with 403 when a single-use token is rejected.
const (
	MsgUnknownToken = "Unknown single use token, maybe it was already used?"
	MsgWrongTenant  = "This single use token cannot be used for this database"
	MsgExpired      = "This single use token has expired"
)

// Dispatch path labels.
const (
	PathPublic     = "public"
	PathCORS       = "cors"
	PathSingleUse  = "single_use"
	PathBearer     = "bearer"
	PathIntegrated = "integrated"
)

// Config holds the static allowlists and CORS setting.
type Config struct {
	// CORSAllowOrigin enables the preflight bypass when non-empty.
	CORSAllowOrigin string

	// NeverSecretURLs never require authentication.
	NeverSecretURLs []string

	// IgnoreTenantURLs are authenticated but not checked against the
	// caller's approved databases.
	IgnoreTenantURLs []string
}

// Authorizer dispatches each request to exactly one authentication path.
// It is safe for concurrent use; the token store is its only mutable state.
type Authorizer struct {
	cors         string
	neverSecret  map[string]bool
	ignoreTenant map[string]bool

	bearer     auth.Backend
	integrated auth.Backend
	tokens     *onetime.Store

	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithClock sets the time source used when redeeming single-use tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// New creates an Authorizer over the two backends and the token store.
func New(cfg Config, bearer, integrated auth.Backend, tokens *onetime.Store, opts ...Option) *Authorizer {
	a := &Authorizer{
		cors:         cfg.CORSAllowOrigin,
		neverSecret:  urlSet(cfg.NeverSecretURLs),
		ignoreTenant: urlSet(cfg.IgnoreTenantURLs),
		bearer:       bearer,
		integrated:   integrated,
		tokens:       tokens,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides whether r may proceed. On success the returned request
// carries the resolved principal in its context. On failure the rejection
// has been written to w.
func (a *Authorizer) Authorize(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	relURL := strings.ToLower(tenant.RelativePath(r.URL.Path))

	if a.neverSecret[relURL] {
		record(PathPublic, true)
		return r, true
	}

	// CORS preflight carries no credentials.
	if a.cors != "" && r.Method == http.MethodOptions {
		record(PathCORS, true)
		return r, true
	}

	if token := r.Header.Get(auth.HeaderSingleUseToken); token != "" {
		return a.authorizeSingleUse(w, r, token)
	}

	path, backend := a.route(r)
	p, ok := backend.Authorize(w, r, a.ignoreTenant[relURL])
	record(path, ok)
	if !ok {
		return r, false
	}
	return r.WithContext(auth.Publish(r.Context(), p)), true
}

func (a *Authorizer) authorizeSingleUse(w http.ResponseWriter, r *http.Request, token string) (*http.Request, bool) {
	tenantID := tenant.FromContext(r.Context())

	snap, err := a.tokens.Redeem(token, tenantID, a.now())
	if err != nil {
		record(PathSingleUse, false)
		a.logger.Warn("single use token rejected",
			"tenant", tenantID,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		api.WriteError(w, http.StatusForbidden, redemptionMessage(err))
		return r, false
	}

	record(PathSingleUse, true)
	return r.WithContext(auth.Publish(r.Context(), snap)), true
}

// GetUser resolves the principal of an already authorized request. It never
// consults single-use tokens.
func (a *Authorizer) GetUser(r *http.Request) auth.Principal {
	_, backend := a.route(r)
	return backend.GetUser(r)
}

// GetApprovedDatabases filters all down to the databases user may access.
// A wildcard grant returns all unchanged; otherwise the backend's list is
// returned as is.
func (a *Authorizer) GetApprovedDatabases(ctx context.Context, user auth.Principal, r *http.Request, all []string) ([]string, error) {
	backend := a.integrated
	if auth.HasBearerHeader(r) {
		backend = a.bearer
	}

	approved, err := backend.GetApprovedDatabases(ctx, user)
	if err != nil {
		return nil, err
	}
	if slices.Contains(approved, "*") {
		return slices.Clone(all), nil
	}
	return approved, nil
}

// IssueToken issues a single-use token for tenantID on behalf of user.
func (a *Authorizer) IssueToken(tenantID string, user auth.Principal) string {
	return a.tokens.Issue(tenantID, user)
}

// Close releases both backends.
func (a *Authorizer) Close() error {
	return errors.Join(a.bearer.Close(), a.integrated.Close())
}

func (a *Authorizer) route(r *http.Request) (string, auth.Backend) {
	if auth.WantsBearer(r) {
		return PathBearer, a.bearer
	}
	return PathIntegrated, a.integrated
}

func redemptionMessage(err error) string {
	switch {
	case errors.Is(err, onetime.ErrWrongTenant):
		return MsgWrongTenant
	case errors.Is(err, onetime.ErrExpired):
		return MsgExpired
	default:
		return MsgUnknownToken
	}
}

func record(path string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	observability.AuthDecisionsTotal.WithLabelValues(path, outcome).Inc()
}

func urlSet(urls []string) map[string]bool {
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[strings.ToLower(u)] = true
	}
	return set
}
