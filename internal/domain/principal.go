package domain

import "context"

type principalKey struct{}

// WithPrincipal tags ctx with the principal a call was issued for. The
// gateway refuses to run the call once the current principal differs.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFrom returns the principal ctx was tagged with, if any.
func PrincipalFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok
}
