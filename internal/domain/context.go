package domain

import "context"

type callerKey struct{}

// CallerContext carries the authenticated identity and the target address
// of the request. Constructed fresh per request; never mutated.
type CallerContext struct {
	UserID   string
	Name     string
	Role     Role
	Database string
	Schema   string
	Table    string
}

// WithCaller stores a CallerContext in the context.
func WithCaller(ctx context.Context, c CallerContext) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext extracts the CallerContext from the context.
func CallerFromContext(ctx context.Context) (CallerContext, bool) {
	c, ok := ctx.Value(callerKey{}).(CallerContext)
	return c, ok
}
