// Package tenant resolves which tenant database a request targets and carries
// it on the request context.
//
// Tenant-scoped URLs have the form /databases/{name}/...; every other URL
// targets the system database.
package tenant

import (
	"context"
	"net/http"
	"strings"
)

// SystemDatabase is the tenant id used for requests outside /databases/{name}.
const SystemDatabase = "<system>"

const databasesPrefix = "/databases/"

// tenantKey is a private type for the tenant context key.
type tenantKey struct{}

// WithTenant injects a tenant identifier into the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// FromContext extracts the tenant identifier from the context.
// Returns SystemDatabase if no tenant is set.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok && v != "" {
		return v
	}
	return SystemDatabase
}

// FromPath returns the tenant addressed by an URL path.
func FromPath(path string) string {
	name, _ := split(path)
	if name == "" {
		return SystemDatabase
	}
	return name
}

// RelativePath returns the path with any /databases/{name} prefix removed,
// so allowlists can match the same endpoint on every tenant.
func RelativePath(path string) string {
	_, rest := split(path)
	return rest
}

func split(path string) (name, rest string) {
	if !strings.HasPrefix(path, databasesPrefix) {
		return "", path
	}
	tail := path[len(databasesPrefix):]
	name, rest, found := strings.Cut(tail, "/")
	if name == "" {
		return "", path
	}
	if !found {
		return name, "/"
	}
	return name, "/" + rest
}

// Middleware resolves the tenant from the URL path and stores it on the
// request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithTenant(r.Context(), FromPath(r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
