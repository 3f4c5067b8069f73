package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codelane/authdeck/internal/adapters/memdir"
	"github.com/codelane/authdeck/internal/adapters/memstore"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	authmocks "github.com/codelane/authdeck/internal/mocks/auth"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/codelane/authdeck/internal/service"
)

// webFixture wires the full router over in-memory adapters so tests exercise
// the same middleware chain production uses.
type webFixture struct {
	t       *testing.T
	handler http.Handler

	auth      *service.AuthService
	directory *memdir.Directory
	sessions  *memstore.SessionStore
	roles     *authmocks.MemoryRoleStore
	profiles  *authmocks.MemoryProfileStore
	audit     *authmocks.MemoryAuditLog
	social    *authmocks.MockSocialProvider
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()

	f := &webFixture{
		t:         t,
		directory: memdir.New(),
		sessions:  memstore.NewSessionStore(),
		roles:     authmocks.NewMemoryRoleStore(),
		profiles:  authmocks.NewMemoryProfileStore(),
		audit:     authmocks.NewMemoryAuditLog(),
		social:    authmocks.NewMockSocialProvider(domainauth.ProviderGoogle),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stream := memstore.NewAuthStateStream()

	f.auth = service.NewAuthService(service.AuthServiceOptions{
		Directory: f.directory,
		Sessions:  f.sessions,
		Roles:     f.roles,
		Stream:    stream,
		Providers: map[domainauth.ProviderID]ports.SocialProvider{
			domainauth.ProviderGoogle: f.social,
		},
		SessionTTL: time.Hour,
		Logger:     logger,
	})
	accounts := service.NewAccountsService(service.AccountsServiceOptions{
		Directory: f.directory,
		Profiles:  f.profiles,
		Roles:     f.roles,
		Sessions:  f.sessions,
		Stream:    stream,
		Logger:    logger,
	})
	admin := service.NewAdminService(service.AdminServiceOptions{
		Directory: f.directory,
		Tokens:    f.directory,
		Roles:     f.roles,
		Profiles:  f.profiles,
		Sessions:  f.sessions,
		Audit:     f.audit,
		Stream:    stream,
		Logger:    logger,
	})

	handler, err := NewRouter(RouterServices{
		Auth:     f.auth,
		Accounts: accounts,
		Admin:    admin,
		BaseURL:  "http://app.test",
		Logger:   logger,
	})
	require.NoError(t, err)
	f.handler = handler
	return f
}

func (f *webFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *webFixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

// csrfCookie fetches a page anonymously and returns the issued CSRF cookie.
func (f *webFixture) csrfCookie() *http.Cookie {
	f.t.Helper()
	rec := f.get("/signin")
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCSRFCookieName {
			return c
		}
	}
	f.t.Fatal("no csrf cookie issued")
	return nil
}

// postForm submits a form with the CSRF token included, the way a browser
// would after loading the page.
func (f *webFixture) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()
	csrf := f.csrfCookie()
	form.Set("csrf_token", csrf.Value)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(csrf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

// doJSON sends a JSON request with the CSRF token in the header, the way the
// console's fetch calls do.
func (f *webFixture) doJSON(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	f.t.Helper()
	csrf := f.csrfCookie()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DefaultCSRFHeaderName, csrf.Value)
	req.AddCookie(csrf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

// doBearer sends a request authenticated only by an Authorization bearer
// token, the way API callers hit the proxy endpoints.
func (f *webFixture) doBearer(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return f.do(req)
}

// seedUser provisions a verified account and returns its id.
func (f *webFixture) seedUser(email, password string) string {
	f.t.Helper()
	return f.directory.Seed(email, password)
}

// signIn establishes a session directly through the service and returns its
// cookie plus the session itself.
func (f *webFixture) signIn(email, password string) (*http.Cookie, domainauth.Session) {
	f.t.Helper()
	sess, err := f.auth.SignIn(context.Background(), email, password)
	require.NoError(f.t, err)
	return &http.Cookie{Name: SessionCookieName, Value: sess.ID}, sess
}

// signInAdmin seeds a verified admin and signs them in.
func (f *webFixture) signInAdmin(email string) (*http.Cookie, domainauth.Session) {
	f.t.Helper()
	id := f.seedUser(email, "adminpassword")
	require.NoError(f.t, f.roles.SetRole(context.Background(), id, domainauth.RoleAdmin, "test"))
	return f.signIn(email, "adminpassword")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHomePage(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Welcome to Authdeck")
	require.Contains(t, rec.Body.String(), "/signin")
}

func TestNotFoundPageForBrowserRoutes(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/no-such-page")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Page not found")
}

func TestNotFoundStaysPlainForAPIRoutes(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/api/no-such-endpoint")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotContains(t, rec.Body.String(), "Page not found")
}

func TestStaticPagesRender(t *testing.T) {
	f := newWebFixture(t)

	for _, path := range []string{"/privacy", "/data-deletion", "/signed-out"} {
		rec := f.get(path)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}
