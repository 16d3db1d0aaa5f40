package auth

import "context"

// identityKey is a private type for the principal context key.
type identityKey struct{}

// authenticatedUserKey is a private type for the authenticated user name key.
type authenticatedUserKey struct{}

// SetIdentity stores the current principal in the context.
func SetIdentity(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, identityKey{}, p)
}

// PrincipalFromContext retrieves the current principal.
// Returns nil if no principal is set (anonymous or public request).
func PrincipalFromContext(ctx context.Context) Principal {
	if v, ok := ctx.Value(identityKey{}).(Principal); ok && !isNil(v) {
		return v
	}
	return nil
}

// IdentityFromContext retrieves the current principal when it is an *Identity
// produced by one of the backends.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// SetAuthenticatedUser stores the authenticated user name in the context.
func SetAuthenticatedUser(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, authenticatedUserKey{}, name)
}

// AuthenticatedUser returns the authenticated user name, or empty string.
func AuthenticatedUser(ctx context.Context) string {
	if v, ok := ctx.Value(authenticatedUserKey{}).(string); ok {
		return v
	}
	return ""
}

// Publish stores p in both the principal and authenticated user slots.
// A nil principal is recorded as an explicitly anonymous request.
func Publish(ctx context.Context, p Principal) context.Context {
	if isNil(p) {
		return SetIdentity(ctx, nil)
	}
	ctx = SetAuthenticatedUser(ctx, p.Name())
	return SetIdentity(ctx, p)
}
