package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Request signals inspected by the authorizer. The names are part of the
// wire contract with clients.
const (
	HeaderSingleUseToken = "Single-Use-Auth-Token"
	HeaderHasAPIKey      = "Has-Api-Key"
	HeaderAuthorization  = "Authorization"
	CookieOAuthToken     = "OAuth-Token"

	bearerPrefix = "Bearer "
)

// Backend is the capability shared by the bearer-token and integrated-auth
// backends. Authorize writes its own rejection response before returning
// false.
type Backend interface {
	Authorize(w http.ResponseWriter, r *http.Request, bypassTenantCheck bool) (Principal, bool)
	GetUser(r *http.Request) Principal
	GetApprovedDatabases(ctx context.Context, p Principal) ([]string, error)
	Close() error
}

// HasAPIKey reports whether the client announced API key authentication.
func HasAPIKey(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(HeaderHasAPIKey), "True")
}

// HasBearerHeader reports whether the Authorization header uses the Bearer scheme.
func HasBearerHeader(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get(HeaderAuthorization), bearerPrefix)
}

// HasOAuthCookie reports whether the OAuth-Token cookie is present.
func HasOAuthCookie(r *http.Request) bool {
	_, err := r.Cookie(CookieOAuthToken)
	return err == nil
}

// WantsBearer reports whether the request carries any bearer-token signal.
func WantsBearer(r *http.Request) bool {
	return HasAPIKey(r) || HasOAuthCookie(r) || HasBearerHeader(r)
}

// BearerToken extracts the bearer credential from the Authorization header,
// falling back to the OAuth-Token cookie. Returns empty string if neither
// carries a value.
func BearerToken(r *http.Request) string {
	if HasBearerHeader(r) {
		return strings.TrimSpace(strings.TrimPrefix(r.Header.Get(HeaderAuthorization), bearerPrefix))
	}
	if c, err := r.Cookie(CookieOAuthToken); err == nil {
		return strings.TrimPrefix(c.Value, bearerPrefix)
	}
	return ""
}

// ForbiddenMessage is written with 403 when an authenticated caller lacks
// access to tenantID.
func ForbiddenMessage(tenantID string) string {
	return fmt.Sprintf("Access to database '%s' is not allowed", tenantID)
}
