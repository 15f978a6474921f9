package auth

import "context"

// HasRole reports whether the identity's role is in the allow-list.
// An empty allow-list admits nobody.
func HasRole(identity Identity, allowed ...string) bool {
	for _, role := range allowed {
		if identity.Role == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying the verified identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || identity.ID < 1 {
		return Identity{}, false
	}
	return identity, true
}
