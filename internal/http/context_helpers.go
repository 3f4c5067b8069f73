package httpx

import (
	"context"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across
// packages. All handlers and middleware use the same key.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries the given session.
func SetSessionInContext(ctx context.Context, sess *domainauth.Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session from context and whether one is present.
func SessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if sess, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && sess != nil {
		return sess, true
	}
	return nil, false
}

// IsSignedIn reports whether the request context carries a session.
func IsSignedIn(ctx context.Context) bool {
	_, ok := SessionFromContext(ctx)
	return ok
}
