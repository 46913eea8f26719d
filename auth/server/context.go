package server

import (
	"context"

	"github.com/flokana/authgate/lib/identity"
)

type contextKey string

const principalKey contextKey = "authgate-principal"

// SetPrincipal attaches a resolved principal to the context.
func SetPrincipal(ctx context.Context, principal *identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal returns the principal the guard attached to the request
// context, or nil for unauthenticated requests.
func GetPrincipal(ctx context.Context) *identity.Principal {
	principal, _ := ctx.Value(principalKey).(*identity.Principal)
	return principal
}
