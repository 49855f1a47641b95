package security

import (
	"context"

	"rentacar-escrow-backend/internal/domain"
)

type contextKey int

const callerAccountKey contextKey = iota

// WithCallerAccount marks ctx as carrying a proven caller identity. The
// transport layer sets it after validating the bearer token; it must never
// be set from unverified request data.
func WithCallerAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerAccountKey, account)
}

// CallerAccount returns the proven identity attached to ctx, if any.
func CallerAccount(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(callerAccountKey).(string)
	return account, ok
}

// Authorizer is the "require caller is account X" capability consumed by
// every mutating engine operation.
type Authorizer interface {
	RequireIdentity(ctx context.Context, account string) error
}

// ContextAuthorizer authorizes a call when the identity proven by the
// transport layer matches the required account.
type ContextAuthorizer struct{}

func NewContextAuthorizer() *ContextAuthorizer {
	return &ContextAuthorizer{}
}

func (a *ContextAuthorizer) RequireIdentity(ctx context.Context, account string) error {
	caller, ok := CallerAccount(ctx)
	if !ok || caller != account {
		return domain.ErrNotAuthorized
	}
	return nil
}
