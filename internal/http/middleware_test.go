package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
)

func TestHasRequiredRole(t *testing.T) {
	tests := []struct {
		name     string
		userRole domainauth.Role
		required domainauth.Role
		want     bool
	}{
		{"admin passes admin check", domainauth.RoleAdmin, domainauth.RoleAdmin, true},
		{"admin passes user check", domainauth.RoleAdmin, domainauth.RoleUser, true},
		{"user fails admin check", domainauth.RoleUser, domainauth.RoleAdmin, false},
		{"user passes user check", domainauth.RoleUser, domainauth.RoleUser, true},
		{"disabled fails user check", domainauth.RoleDisabled, domainauth.RoleUser, false},
		{"disabled fails admin check", domainauth.RoleDisabled, domainauth.RoleAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasRequiredRole(tt.userRole, tt.required))
		})
	}
}

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/profile", "/profile"},
		{"/admin?filter=x", "/admin?filter=x"},
		{"https://evil.example/", "/"},
		{"//evil.example", "/"},
		{"relative/path", "/"},
		{"javascript:alert(1)", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeRedirectPath(tt.in), "input %q", tt.in)
	}
}

func TestLoadSessionLeavesAnonymousRequestsAlone(t *testing.T) {
	f := newWebFixture(t)

	var sawSession bool
	probe := LoadSession(f.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawSession = SessionFromContext(r.Context())
	}))

	probe.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, sawSession)
}

func TestLoadSessionResolvesCookie(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")
	sessCookie, sess := f.signIn("alice@example.com", "correct horse")

	var got *domainauth.Session
	probe := LoadSession(f.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessCookie)
	probe.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	require.Equal(t, sess.UserID, got.UserID)
}

func TestRequireAuthJSON(t *testing.T) {
	f := newWebFixture(t)

	probe := RequireAuth(f.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	probe.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/thing", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoverTurnsPanicsInto500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	probe := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	probe.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusForError(t *testing.T) {
	// The handler tests cover the common codes end to end; this pins the
	// full mapping.
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NotFound("x"), http.StatusNotFound},
		{apperrors.Conflict("x"), http.StatusConflict},
		{apperrors.Validation("x"), http.StatusBadRequest},
		{apperrors.Unauthorized("x"), http.StatusUnauthorized},
		{apperrors.Forbidden("x"), http.StatusForbidden},
		{apperrors.Unavailable("x"), http.StatusServiceUnavailable},
		{apperrors.PartialFailure("x"), http.StatusBadGateway},
		{apperrors.Internal("x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err))
	}
}
