package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/codelane/authdeck/internal/service"
)

// AuthFlow defines the auth service operations the HTTP layer uses.
type AuthFlow interface {
	SignUp(ctx context.Context, email, password string) (domainauth.Session, error)
	SignIn(ctx context.Context, email, password string) (domainauth.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	BeginSocial(ctx context.Context, provider domainauth.ProviderID, redirectURL string) (service.BeginSocialResult, error)
	CompleteSocial(ctx context.Context, provider domainauth.ProviderID, in ports.ExchangeInput) (domainauth.Session, error)
	GetSession(ctx context.Context, sessionID string) (domainauth.Session, error)
	ResolveBearer(ctx context.Context, token string) (domainauth.Session, error)
	ResetPassword(ctx context.Context, email string) error
	RequiresVerification(sess domainauth.Session) bool
}

// AuthHandlers provides the sign-in, sign-up, and social callback endpoints.
type AuthHandlers struct {
	Svc          AuthFlow
	Renderer     *TemplateRenderer
	CookieDomain string
	// BaseURL is the externally visible origin, used to build social
	// callback URLs (e.g. https://app.example.com).
	BaseURL string
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SignInPage renders the sign-in form.
// GET /signin?next=<optional_redirect>.
func (h *AuthHandlers) SignInPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Sign in", CurrentPage: "signin"})
	data.With("Next", safeRedirectPath(r.URL.Query().Get("next")))
	h.render(w, "signin", data)
}

// SignIn handles the email-password sign-in form.
// POST /signin.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	next := safeRedirectPath(r.FormValue("next"))

	sess, err := h.Svc.SignIn(r.Context(), email, password)
	if err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "signin",
			Meta:     PageMeta{Title: "Sign in", CurrentPage: "signin"},
			Data:     map[string]any{"Email": email, "Next": next},
		})
		return
	}

	h.finishSignIn(w, r, sess, next)
}

// SignUpPage renders the registration form.
// GET /signup.
func (h *AuthHandlers) SignUpPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, "signup", NewTemplateData(r, PageMeta{Title: "Create account", CurrentPage: "signup"}))
}

// SignUp handles the registration form.
// POST /signup.
func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if confirm := r.FormValue("password_confirm"); confirm != password {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r,
			Err:      apperrors.ValidationField("password_confirm", "passwords do not match"),
			Template: "signup",
			Meta:     PageMeta{Title: "Create account", CurrentPage: "signup"},
			Data:     map[string]any{"Email": email},
		})
		return
	}

	sess, err := h.Svc.SignUp(r.Context(), email, password)
	if err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "signup",
			Meta:     PageMeta{Title: "Create account", CurrentPage: "signup"},
			Data:     map[string]any{"Email": email},
		})
		return
	}

	h.finishSignIn(w, r, sess, "/")
}

// SignOut ends the session.
// POST /signout.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.Svc.SignOut(r.Context(), cookie.Value); err != nil {
			h.logger().WarnContext(r.Context(), "sign-out failed", "error", err)
		}
	}
	h.clearCookie(w, r, SessionCookieName)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
		return
	}
	http.Redirect(w, r, "/signed-out", http.StatusSeeOther)
}

// ResetPage renders the password-reset request form.
// GET /reset-password.
func (h *AuthHandlers) ResetPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "reset", NewTemplateData(r, PageMeta{Title: "Reset password", CurrentPage: "signin"}))
}

// Reset sends the password-reset email. Unknown addresses get the same
// response as known ones.
// POST /reset-password.
func (h *AuthHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))

	if err := h.Svc.ResetPassword(r.Context(), email); err != nil && apperrors.IsValidation(err) {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "reset",
			Meta:     PageMeta{Title: "Reset password", CurrentPage: "signin"},
		})
		return
	} else if err != nil {
		h.logger().WarnContext(r.Context(), "reset password failed", "error", err)
	}

	data := NewTemplateData(r, PageMeta{Title: "Reset password", CurrentPage: "signin"})
	data.WithNotice("If an account exists for that address, a reset email is on its way.")
	h.render(w, "reset", data)
}

// BeginSocial starts a social sign-in flow and redirects to the provider.
// GET /auth/{provider}?next=<optional_redirect>.
func (h *AuthHandlers) BeginSocial(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerFromPath(r.PathValue("provider"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	next := safeRedirectPath(r.URL.Query().Get("next"))
	result, err := h.Svc.BeginSocial(r.Context(), provider, h.callbackURL(provider))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin social sign-in failed", "provider", provider, "error", err)
		http.Redirect(w, r, "/signin?error=social", http.StatusSeeOther)
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, Next: next})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback finishes a social sign-in flow.
// GET /auth/callback/{provider}?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerFromPath(r.PathValue("provider"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_params",
			Err:     errors.New("code and state parameters are required"),
		})
		return
	}

	// The state cookie binds the callback to the browser that started the flow.
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonce := ""
	if nonceCookie, err := r.Cookie("oauth_nonce"); err == nil {
		nonce = nonceCookie.Value
	}

	sess, err := h.Svc.CompleteSocial(r.Context(), provider, ports.ExchangeInput{
		Code:  code,
		State: state,
		Nonce: nonce,
	})
	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")
	if err != nil {
		h.logger().WarnContext(r.Context(), "social sign-in failed", "provider", provider, "error", err)
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "signin",
			Meta:     PageMeta{Title: "Sign in", CurrentPage: "signin"},
		})
		return
	}

	next := h.consumeNextCookie(w, r)
	h.finishSignIn(w, r, sess, next)
}

// Status returns the current authentication status as JSON.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	sess, err := h.Svc.GetSession(r.Context(), cookie.Value)
	if err != nil {
		h.clearCookie(w, r, SessionCookieName)
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":             sess.UserID,
			"email":          sess.Email,
			"display_name":   sess.DisplayName,
			"role":           sess.Role,
			"email_verified": sess.EmailVerified,
		},
		"expires_at": sess.ExpiresAt,
	})
}

// finishSignIn sets the session cookie and routes the user to either the
// verification page or their destination.
func (h *AuthHandlers) finishSignIn(w http.ResponseWriter, r *http.Request, sess domainauth.Session, next string) {
	h.setSessionCookie(w, r, sess)
	if h.Svc.RequiresVerification(sess) {
		http.Redirect(w, r, "/verify-email", http.StatusSeeOther)
		return
	}
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func providerFromPath(name string) (domainauth.ProviderID, bool) {
	switch name {
	case "google":
		return domainauth.ProviderGoogle, true
	case "facebook":
		return domainauth.ProviderFacebook, true
	default:
		return "", false
	}
}

func (h *AuthHandlers) callbackURL(provider domainauth.ProviderID) string {
	base := strings.TrimSuffix(h.BaseURL, "/")
	switch provider {
	case domainauth.ProviderGoogle:
		return base + "/auth/callback/google"
	case domainauth.ProviderFacebook:
		return base + "/auth/callback/facebook"
	default:
		return base + "/auth/callback"
	}
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func (h *AuthHandlers) render(w http.ResponseWriter, name string, data *TemplateData) {
	if err := h.Renderer.Render(w, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// oauthCookieParams groups the values stored while the user is at the provider.
type oauthCookieParams struct {
	State string
	Nonce string
	Next  string
}

// setOAuthCookies stores the state, nonce, and post-sign-in destination in
// short-lived cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	secure := isRequestSecure(r)
	const tenMinutes = 600

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    p.State,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   tenMinutes,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_nonce",
		Value:    p.Nonce,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   tenMinutes,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "post_signin_redirect",
		Value:    p.Next,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   tenMinutes,
	})
}

// consumeNextCookie returns the stored post-sign-in destination and clears it.
func (h *AuthHandlers) consumeNextCookie(w http.ResponseWriter, r *http.Request) string {
	next := "/"
	if cookie, err := r.Cookie("post_signin_redirect"); err == nil {
		next = safeRedirectPath(cookie.Value)
		h.clearCookie(w, r, "post_signin_redirect")
	}
	return next
}

// setSessionCookie writes the session cookie sized to the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, sess domainauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isRequestSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
	})
}

// clearCookie expires a cookie, mirroring the attributes used when setting it.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isRequestSecure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
