package auth

import "context"

var identityCtxKey = &contextKey{"identity"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithIdentity sets the Identity in the given context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity in the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityCtxKey).(Identity)
	return identity, ok
}

// WithClaimsContext sets the raw ClaimSet in the given context
func WithClaimsContext(ctx context.Context, claims ClaimSet) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the ClaimSet from the context
func GetClaims(ctx context.Context) (ClaimSet, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsCtxKey).(ClaimSet)
	return claims, ok
}

// Can reports whether the identity in ctx meets minRole. A context without
// an identity never qualifies.
func Can(ctx context.Context, minRole Role) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return identity.IsAtLeast(minRole)
}

// ContextWithSession attaches the live session of manager to ctx, if any.
func (m *SessionManager) ContextWithSession(ctx context.Context) context.Context {
	identity, ok := m.Current(ctx)
	if !ok {
		return ctx
	}
	return WithIdentity(ctx, identity)
}
