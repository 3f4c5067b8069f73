package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/observability/statsd"
)

// SessionReader resolves a session id to a live session. Satisfied by
// service.AuthService.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (domainauth.Session, error)
}

// VerificationChecker reports whether a session's user still has to verify
// their email. Satisfied by service.AuthService.
type VerificationChecker interface {
	RequiresVerification(sess domainauth.Session) bool
}

// BearerResolver authenticates a directory bearer token into an ephemeral
// session. Satisfied by service.AuthService.
type BearerResolver interface {
	ResolveBearer(ctx context.Context, token string) (domainauth.Session, error)
}

// SessionCookieName is the cookie that carries the session id.
const SessionCookieName = "session_id"

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Metrics returns a middleware that emits per-request timing to the sink.
func Metrics(sink statsd.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if sink == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			sink.Timing("http.request", time.Since(start), map[string]string{
				"method": r.Method,
				"status": strconv.Itoa(ww.status),
			})
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoadSession returns a middleware that resolves the session cookie and, when
// valid, stores the session in the request context. Requests without a valid
// session continue unauthenticated.
func LoadSession(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess := sessionFromRequest(r, sessions); sess != nil {
				r = r.WithContext(SetSessionInContext(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuth returns a middleware that accepts an Authorization bearer token
// on JSON endpoints, for API callers that hold a directory token instead of
// a session cookie. Requests without the header fall through to the
// cookie-based middlewares unchanged; requests with an unknown or revoked
// token get 401.
func BearerAuth(resolver BearerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := resolver.ResolveBearer(r.Context(), token)
			if err != nil {
				if apperrors.IsUnauthorized(err) || apperrors.IsNotFound(err) {
					WriteError(w, ErrorParams{
						Code:    http.StatusUnauthorized,
						ErrCode: "invalid_token",
						Err:     errors.New("invalid or expired token"),
					})
					return
				}
				WriteAppError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), &sess)))
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// RequireAuth returns a middleware that requires authentication for JSON
// endpoints, returning 401 when no valid session is present.
func RequireAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessionForRequest(r, sessions)
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
		})
	}
}

// RequireRole returns a middleware that requires a role for JSON endpoints.
func RequireRole(sessions SessionReader, required domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessionForRequest(r, sessions)
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			if !hasRequiredRole(sess.Role, required) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
		})
	}
}

// RequireAuthPage returns a middleware for HTML pages: unauthenticated
// requests are redirected to the sign-in page with the current URL preserved.
func RequireAuthPage(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessionForRequest(r, sessions)
			if !ok {
				redirectToSignIn(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
		})
	}
}

// RequireRolePage returns a middleware for HTML pages that requires a role.
// Unauthenticated requests redirect to sign-in; authenticated requests
// without the role get a 403 page.
func RequireRolePage(sessions SessionReader, required domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessionForRequest(r, sessions)
			if !ok {
				redirectToSignIn(w, r)
				return
			}
			if !hasRequiredRole(sess.Role, required) {
				http.Error(w, "Access denied: you do not have permission to view this page", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
		})
	}
}

// RequireVerified returns a middleware that sends users who still have to
// verify their email to the verification page. It runs after an auth
// middleware, so a session is already in context.
func RequireVerified(checker VerificationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if ok && checker.RequiresVerification(*sess) {
				http.Redirect(w, r, "/verify-email", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionForRequest prefers a session already loaded into the context and
// falls back to resolving the cookie.
func sessionForRequest(r *http.Request, sessions SessionReader) (*domainauth.Session, bool) {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return sess, true
	}
	if sess := sessionFromRequest(r, sessions); sess != nil {
		return sess, true
	}
	return nil, false
}

// sessionFromRequest retrieves and validates a session from the request cookie.
func sessionFromRequest(r *http.Request, sessions SessionReader) *domainauth.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}

	sess, err := sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return &sess
}

// hasRequiredRole checks whether the user's role meets the required role.
// Disabled accounts pass no check; admins satisfy the user requirement.
func hasRequiredRole(userRole, required domainauth.Role) bool {
	if userRole == domainauth.RoleDisabled {
		return false
	}
	if required == domainauth.RoleAdmin {
		return userRole == domainauth.RoleAdmin
	}
	return userRole == domainauth.RoleUser || userRole == domainauth.RoleAdmin
}

// redirectToSignIn sends browser requests to the sign-in page with the
// current URL as next.
func redirectToSignIn(w http.ResponseWriter, r *http.Request) {
	next := safeRedirectPath(r.URL.RequestURI())
	http.Redirect(w, r, "/signin?next="+url.QueryEscape(next), http.StatusSeeOther)
}

// safeRedirectPath ensures the candidate is a same-origin relative path
// starting with "/". Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	// Reject scheme-relative references like //evil.example.
	if strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
