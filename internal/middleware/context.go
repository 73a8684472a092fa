package middleware

import (
	"context"

	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

// RequestContext is the per-request authentication state. User and Session
// are both set or both nil.
type RequestContext struct {
	User    *user.PublicUser
	Session *session.Session
}

// Authenticated reports whether the request carries a live session.
func (rc RequestContext) Authenticated() bool {
	return rc.User != nil && rc.Session != nil
}

// unexported, collision-proof context key
type requestContextKeyType struct{}

var requestContextKey = requestContextKeyType{}

func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the state attached by the session middleware, or an
// anonymous RequestContext when none was attached.
func FromContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey).(RequestContext)
	return rc
}
