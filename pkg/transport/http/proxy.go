package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/auth"
	"github.com/rhuss/dbgate/pkg/tenant"
)

// Headers set on requests forwarded to the database server. Client-supplied
// copies are always removed first.
const (
	HeaderForwardedUser     = "X-Dbgate-User"
	HeaderForwardedAuthType = "X-Dbgate-Auth-Type"
	HeaderForwardedDatabase = "X-Dbgate-Database"
)

// NewUpstreamProxy returns a handler forwarding authorized requests to the
// database server at target. The resolved principal and tenant travel in
// the X-Dbgate-* headers; anonymous requests carry no user header. Client
// credentials are never forwarded.
func NewUpstreamProxy(target *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			h := pr.Out.Header
			h.Del(HeaderForwardedUser)
			h.Del(HeaderForwardedAuthType)
			h.Del(auth.HeaderSingleUseToken)
			h.Del(auth.HeaderAuthorization)
			h.Del(auth.HeaderHasAPIKey)
			stripCookie(pr.Out, auth.CookieOAuthToken)

			ctx := pr.In.Context()
			h.Set(HeaderForwardedDatabase, tenant.FromContext(ctx))
			if p := auth.PrincipalFromContext(ctx); p != nil {
				h.Set(HeaderForwardedUser, p.Name())
				h.Set(HeaderForwardedAuthType, p.AuthenticationType())
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				"path", r.URL.Path,
				"upstream", target.Host,
				"error", err,
			)
			api.WriteError(w, http.StatusBadGateway, "Database server unavailable")
		},
	}
}

// stripCookie removes the named cookie from r and keeps the others.
func stripCookie(r *http.Request, name string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != name {
			r.AddCookie(c)
		}
	}
}
