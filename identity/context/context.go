package identitycontext

import (
	"context"

	"github.com/nasermirzaei89/backtalk/identity"
)

type contextKeyPrincipal struct{}

func WithPrincipal(ctx context.Context, principal identity.Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, principal)
}

// GetPrincipal returns the principal resolved for the current request.
// The second return value is false for anonymous requests.
func GetPrincipal(ctx context.Context) (identity.Principal, bool) {
	principal, ok := ctx.Value(contextKeyPrincipal{}).(identity.Principal)

	return principal, ok
}
