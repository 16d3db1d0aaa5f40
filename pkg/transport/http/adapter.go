package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/observability"
	"github.com/rhuss/dbgate/pkg/tenant"
	"github.com/rhuss/dbgate/pkg/transport"
)

// Authorizer is the request authorizer as seen by the HTTP layer.
type Authorizer interface {
	auth.RequestAuthorizer
	GetApprovedDatabases(ctx context.Context, user auth.Principal, r *http.Request, all []string) ([]string, error)
	IssueToken(tenantID string, user auth.Principal) string
}

// DatabaseLister lists tenant databases and reports store health.
type DatabaseLister interface {
	ListDatabases(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) error
}

// TokenResponse is returned by the single-use token endpoints.
type TokenResponse struct {
	Token string `json:"Token"`
}

// UserInfo is returned by the user info endpoints.
type UserInfo struct {
	Remark          string   `json:"Remark"`
	User            string   `json:"User,omitempty"`
	AuthType        string   `json:"AuthenticationType,omitempty"`
	IsAuthenticated bool     `json:"IsAuthenticated"`
	Database        string   `json:"Database"`
	Databases       []string `json:"Databases,omitempty"`
}

// VersionInfo is returned by the build version endpoint.
type VersionInfo struct {
	Version string `json:"ProductVersion"`
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Version        string
	MetricsEnabled bool
	MetricsPath    string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Version:        "dev",
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Adapter serves the dbgate HTTP API. Every route except /healthz and the
// metrics endpoint passes through tenant resolution and the authorizer.
type Adapter struct {
	authz      Authorizer
	databases  DatabaseLister
	limiter    auth.RateLimiter
	downstream http.Handler
	config     Config
	logger     *slog.Logger
	mux        *http.ServeMux
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRateLimiter applies per-principal rate limits after authorization.
func WithRateLimiter(l auth.RateLimiter) AdapterOption {
	return func(a *Adapter) { a.limiter = l }
}

// WithDownstream routes authorized requests that match no built-in endpoint
// to h. Without it such requests get 404.
func WithDownstream(h http.Handler) AdapterOption {
	return func(a *Adapter) { a.downstream = h }
}

// WithAdapterLogger sets the structured logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates the HTTP adapter.
func NewAdapter(authz Authorizer, databases DatabaseLister, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		authz:     authz,
		databases: databases,
		config:    cfg,
		logger:    slog.Default(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /singleAuthToken", a.handleSingleAuthToken)
	a.mux.HandleFunc("GET /databases/{db}/singleAuthToken", a.handleSingleAuthToken)
	a.mux.HandleFunc("GET /databases", a.handleListDatabases)
	a.mux.HandleFunc("GET /debug/user-info", a.handleUserInfo)
	a.mux.HandleFunc("GET /databases/{db}/debug/user-info", a.handleUserInfo)
	a.mux.HandleFunc("GET /build/version", a.handleVersion)
	a.mux.HandleFunc("GET /databases/{db}/build/version", a.handleVersion)
	if a.downstream != nil {
		a.mux.Handle("/", a.downstream)
	}

	return a
}

// Handler returns the complete http.Handler including the default
// middleware chain (recovery, request ID, logging, metrics).
func (a *Adapter) Handler() http.Handler {
	protected := transport.Chain(
		tenant.Middleware,
		auth.Middleware(a.authz, a.limiter),
	)(a.mux)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", a.handleHealth)
	if a.config.MetricsEnabled {
		root.Handle("GET "+a.config.MetricsPath, promhttp.Handler())
	}
	root.Handle("/", protected)

	return transport.Chain(
		transport.Recovery(a.logger),
		transport.RequestID(),
		transport.Logging(a.logger),
		observability.MetricsMiddleware,
	)(root)
}

// handleSingleAuthToken handles GET /singleAuthToken and
// GET /databases/{db}/singleAuthToken.
func (a *Adapter) handleSingleAuthToken(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.FromContext(r.Context())
	user := auth.PrincipalFromContext(r.Context())

	token := a.authz.IssueToken(tenantID, user)
	api.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// handleListDatabases handles GET /databases.
func (a *Adapter) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	all, err := a.databases.ListDatabases(r.Context())
	if err != nil {
		a.logger.Error("listing databases failed", "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, "Unable to list databases")
		return
	}

	user := auth.PrincipalFromContext(r.Context())
	approved, err := a.authz.GetApprovedDatabases(r.Context(), user, r, all)
	if err != nil {
		a.logger.Error("resolving approved databases failed", "error", err)
		api.WriteError(w, http.StatusServiceUnavailable, "Unable to resolve approved databases")
		return
	}
	if approved == nil {
		approved = []string{}
	}
	api.WriteJSON(w, http.StatusOK, approved)
}

// handleUserInfo handles GET /debug/user-info and its per-database form.
func (a *Adapter) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	info := UserInfo{
		Remark:   "Using anonymous user",
		Database: tenant.FromContext(r.Context()),
	}

	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		info.Remark = "Using authenticated user"
		info.User = p.Name()
		info.AuthType = p.AuthenticationType()
		info.IsAuthenticated = p.IsAuthenticated()
		if id, ok := p.(*auth.Identity); ok {
			info.Databases = slices.Clone(id.Databases)
		}
	}

	api.WriteJSON(w, http.StatusOK, info)
}

// handleVersion handles GET /build/version.
func (a *Adapter) handleVersion(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, VersionInfo{Version: a.config.Version})
}

// handleHealth reports whether the credential store is reachable.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.databases.HealthCheck(r.Context()); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("health check failed", "error", err)
		}
		http.Error(w, "unavailable\n", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
