package remember

import "context"

var authenticationCtxKey = &contextKey{"authentication"}

type contextKey struct {
	name string
}

// WithAuthentication stores the current authentication in ctx
func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationCtxKey, auth)
}

// AuthenticationFrom returns the authenticated user stored in ctx, if any
func AuthenticationFrom(ctx context.Context) (*Authentication, bool) {
	raw, ok := ctx.Value(authenticationCtxKey).(*Authentication)
	if !ok || raw == nil || !raw.Authenticated {
		return nil, false
	}
	return raw, true
}
