package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/dbgate/pkg/api"
	"github.com/rhuss/dbgate/pkg/observability"
)

// RequestAuthorizer decides whether a request may proceed. On success it
// returns the request to hand to the next handler, carrying the resolved
// identity in its context. On failure the response has already been written.
type RequestAuthorizer interface {
	Authorize(w http.ResponseWriter, r *http.Request) (*http.Request, bool)
}

// Middleware creates HTTP middleware from a RequestAuthorizer and an optional
// RateLimiter. Rate limits apply only to requests that resolved a principal.
func Middleware(authz RequestAuthorizer, limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authed, ok := authz.Authorize(w, r)
			if !ok {
				slog.Debug("request rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				return
			}

			if limiter != nil {
				if p := PrincipalFromContext(authed.Context()); p != nil {
					if err := limiter.Allow(authed.Context(), p); err != nil {
						slog.Warn("rate limit exceeded",
							"user", p.Name(),
							"scheme", p.AuthenticationType(),
						)
						observability.RateLimitRejectedTotal.WithLabelValues(tierOf(p)).Inc()
						api.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
						return
					}
				}
			}

			next.ServeHTTP(w, authed)
		})
	}
}
