package http

import (
	"context"

	"github.com/toccatech/coffre"
)

type identityKey struct{}

// WithIdentity returns a new context carrying the resolved caller.
// A nil identity marks the caller as anonymous.
func WithIdentity(ctx context.Context, identity *coffre.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the resolved caller. Returns nil for an
// anonymous caller or when the resolver middleware did not run.
func IdentityFromContext(ctx context.Context) *coffre.Identity {
	identity, _ := ctx.Value(identityKey{}).(*coffre.Identity)
	return identity
}
