package httpx

import (
	"bytes"
	"log/slog"
	"net/http"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/observability/statsd"
	"github.com/codelane/authdeck/internal/service"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth     AuthFlow
	Accounts *service.AccountsService
	Admin    *service.AdminService

	CookieDomain string
	BaseURL      string
	IsDev        bool
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer, err := NewTemplateRenderer(TemplateRendererConfig{
		DevMode: services.IsDev,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Renderer:     renderer,
		CookieDomain: services.CookieDomain,
		BaseURL:      services.BaseURL,
		Logger:       logger,
	}
	accountHandlers := &AccountHandlers{
		Svc:      services.Accounts,
		Auth:     services.Auth,
		Renderer: renderer,
		Logger:   logger,
	}
	adminHandlers := &AdminHandlers{
		Svc:      services.Admin,
		Renderer: renderer,
		Logger:   logger,
	}
	pageHandlers := &PageHandlers{Renderer: renderer}

	mux := http.NewServeMux()
	registerPublicRoutes(mux, authHandlers, pageHandlers)
	registerAccountRoutes(mux, accountHandlers, services)
	registerAdminRoutes(mux, adminHandlers, services)
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	// Session loading for every request, then logging and panic recovery
	// outermost so they see the final status.
	var handler http.Handler = &notFoundHandler{mux: mux, pages: pageHandlers}
	handler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(handler)
	handler = LoadSession(services.Auth)(handler)
	handler = Metrics(services.Metrics)(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler, nil
}

// registerPublicRoutes wires the routes that need no session.
func registerPublicRoutes(mux *http.ServeMux, auth *AuthHandlers, pages *PageHandlers) {
	mux.HandleFunc("GET /{$}", pages.Home)
	mux.HandleFunc("GET /privacy", pages.Privacy)
	mux.HandleFunc("GET /data-deletion", pages.DataDeletion)
	mux.HandleFunc("GET /signed-out", pages.SignedOut)

	mux.HandleFunc("GET /signin", auth.SignInPage)
	mux.HandleFunc("POST /signin", auth.SignIn)
	mux.HandleFunc("GET /signup", auth.SignUpPage)
	mux.HandleFunc("POST /signup", auth.SignUp)
	mux.HandleFunc("POST /signout", auth.SignOut)
	mux.HandleFunc("GET /reset-password", auth.ResetPage)
	mux.HandleFunc("POST /reset-password", auth.Reset)

	mux.HandleFunc("GET /auth/{provider}", auth.BeginSocial)
	mux.HandleFunc("GET /auth/callback/{provider}", auth.Callback)
	mux.HandleFunc("GET /auth/status", auth.Status)
}

// registerAccountRoutes wires the signed-in user's pages. Everything except
// the verification pages sits behind the verification gate.
func registerAccountRoutes(mux *http.ServeMux, h *AccountHandlers, services RouterServices) {
	authed := RequireAuthPage(services.Auth)
	verified := func(next http.Handler) http.Handler {
		return authed(RequireVerified(services.Auth)(next))
	}

	mux.Handle("GET /profile", verified(http.HandlerFunc(h.ProfilePage)))
	mux.Handle("POST /profile", verified(http.HandlerFunc(h.ProfileUpdate)))
	mux.Handle("GET /settings", verified(http.HandlerFunc(h.SettingsPage)))
	mux.Handle("POST /settings/display-name", verified(http.HandlerFunc(h.DisplayNameUpdate)))
	mux.Handle("POST /settings/password", verified(http.HandlerFunc(h.PasswordUpdate)))
	mux.Handle("POST /settings/delete", verified(http.HandlerFunc(h.DeleteAccount)))

	// The verification pages themselves only need a session.
	mux.Handle("GET /verify-email", authed(http.HandlerFunc(h.VerifyPage)))
	mux.Handle("POST /verify-email/resend", authed(http.HandlerFunc(h.VerifyResend)))
	mux.Handle("POST /verify-email/refresh", authed(http.HandlerFunc(h.VerifyRefresh)))
}

// registerAdminRoutes wires the console pages and the privileged JSON proxy
// endpoints, all admin-only.
func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, services RouterServices) {
	adminPage := RequireRolePage(services.Auth, domainauth.RoleAdmin)
	adminAPI := RequireRole(services.Auth, domainauth.RoleAdmin)

	// The user-targeting proxy endpoints also take an Authorization bearer
	// token, the contract API callers use instead of the session cookie.
	proxyAPI := func(next http.Handler) http.Handler {
		return BearerAuth(services.Auth)(adminAPI(next))
	}

	mux.Handle("GET /admin", adminPage(http.HandlerFunc(h.ConsolePage)))
	mux.Handle("GET /admin/audit", adminPage(http.HandlerFunc(h.AuditPage)))

	mux.Handle("GET /api/admin/users", adminAPI(http.HandlerFunc(h.ListUsers)))
	mux.Handle("GET /api/admin/users/{id}", adminAPI(http.HandlerFunc(h.GetUser)))
	mux.Handle("POST /api/admin/setRole", adminAPI(http.HandlerFunc(h.SetRole)))
	mux.Handle("POST /api/admin/disableUser", proxyAPI(http.HandlerFunc(h.DisableUser)))
	mux.Handle("POST /api/admin/enableUser", proxyAPI(http.HandlerFunc(h.EnableUser)))
	mux.Handle("DELETE /api/admin/deleteUser", proxyAPI(http.HandlerFunc(h.DeleteUser)))
	mux.Handle("GET /api/admin/audit", adminAPI(http.HandlerFunc(h.AuditTrail)))
}

// notFoundHandler wraps the mux to serve the 404 page for unmatched browser
// routes while keeping plain 404s for API paths.
type notFoundHandler struct {
	mux   *http.ServeMux
	pages *PageHandlers
}

func (h *notFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cw := newCaptureWriter(w)
	h.mux.ServeHTTP(cw, r)

	if cw.status == http.StatusNotFound && !isAPIPath(r.URL.Path) {
		h.pages.NotFound(w, r)
		return
	}
	cw.flushTo(w)
}

func isAPIPath(path string) bool {
	return len(path) >= 5 && path[:5] == "/api/"
}

// captureWriter buffers headers, status, and body so we can decide
// post-dispatch whether to substitute the 404 page.
type captureWriter struct {
	rw     http.ResponseWriter
	header http.Header
	status int
	buf    bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{rw: w, header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header         { return c.header }
func (c *captureWriter) WriteHeader(code int)        { c.status = code }
func (c *captureWriter) Write(b []byte) (int, error) { return c.buf.Write(b) }

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.buf.Bytes())
}
