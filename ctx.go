package identity

import (
	"context"

	"github.com/goliatone/go-router"
)

var authCtxKey = &contextKey{"auth"}

type contextKey struct {
	name string
}

// WithContext sets the AuthContext in the given context
func WithContext(r context.Context, auth *AuthContext) context.Context {
	return context.WithValue(r, authCtxKey, auth)
}

// FromContext finds the AuthContext from the context.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	raw, ok := ctx.Value(authCtxKey).(*AuthContext)
	return raw, ok
}

// FromRouterContext extracts the AuthContext stored in router locals
// by the authentication middleware.
func FromRouterContext(ctx router.Context) (*AuthContext, bool) {
	raw := ctx.Locals(AuthContextKey)
	if raw == nil {
		return nil, false
	}
	auth, ok := raw.(*AuthContext)
	return auth, ok
}

// CurrentUser returns the authenticated user, or nil for guests
func CurrentUser(ctx context.Context) *UserInfo {
	auth, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return auth.User
}
