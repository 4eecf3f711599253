// Package auth verifies bearer tokens and enforces role policy at the
// gateway edge.
package auth

import (
	"context"
	"time"
)

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	Subject   string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasAnyRole reports whether the identity's role is in allowed. An empty
// allowed list means any authenticated caller passes.
func (id *Identity) HasAnyRole(allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, role := range allowed {
		if id.Role == role {
			return true
		}
	}
	return false
}

type identityCtxKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext extracts the identity from context, or nil if the
// request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityCtxKey{}).(*Identity); ok {
		return v
	}
	return nil
}
