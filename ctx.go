package passwordless

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the immutable authentication result the gate attaches to a
// request. It names the user and the specific session credential used, which
// is what logout revokes.
type Identity struct {
	UserID       uuid.UUID
	CredentialID uuid.UUID
	Email        string
}

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the Identity in the given context
func WithIdentity(r context.Context, identity *Identity) context.Context {
	return context.WithValue(r, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}
