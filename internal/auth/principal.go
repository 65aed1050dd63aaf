package auth

import "context"

// Principal is the authenticated identity attached to a request or
// socket connection. Populated once by the session guard and immutable
// afterwards.
type Principal struct {
	UserID    string
	SessionID string
	PublicKey []byte
}

type ctxKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
