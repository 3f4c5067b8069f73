package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// httptestPost builds a bare form POST without any CSRF material.
func httptestPost(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestSignInForm(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")

	rec := f.postForm("/signin", url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
		"next":     {"/profile"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/profile", rec.Header().Get("Location"))

	sessCookie := cookieNamed(rec, SessionCookieName)
	require.NotNil(t, sessCookie)
	require.NotEmpty(t, sessCookie.Value)
	require.True(t, sessCookie.HttpOnly)
}

func TestSignInFormWrongPassword(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")

	rec := f.postForm("/signin", url.Values{
		"email":    {"alice@example.com"},
		"password": {"battery staple"},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	// The form is re-rendered with the email preserved and a banner shown.
	require.Contains(t, rec.Body.String(), "alice@example.com")
	require.Contains(t, rec.Body.String(), "invalid email or password")
	require.Nil(t, cookieNamed(rec, SessionCookieName))
}

func TestSignInRejectsMissingCSRFToken(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")

	form := url.Values{"email": {"alice@example.com"}, "password": {"correct horse"}}
	req := httptestPost("/signin", form)
	rec := f.do(req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "CSRF")
}

func TestSignUpFormSendsVerification(t *testing.T) {
	f := newWebFixture(t)

	rec := f.postForm("/signup", url.Values{
		"email":            {"new@example.com"},
		"password":         {"longenough"},
		"password_confirm": {"longenough"},
	})

	// A fresh password account is unverified, so sign-up lands on the
	// verification page.
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/verify-email", rec.Header().Get("Location"))
	require.NotNil(t, cookieNamed(rec, SessionCookieName))
}

func TestSignUpFormPasswordMismatch(t *testing.T) {
	f := newWebFixture(t)

	rec := f.postForm("/signup", url.Values{
		"email":            {"new@example.com"},
		"password":         {"longenough"},
		"password_confirm": {"different!"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "passwords do not match")
	require.Nil(t, cookieNamed(rec, SessionCookieName))
}

func TestSignOut(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")
	sessCookie, sess := f.signIn("alice@example.com", "correct horse")

	rec := f.postForm("/signout", url.Values{}, sessCookie)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/signed-out", rec.Header().Get("Location"))

	cleared := cookieNamed(rec, SessionCookieName)
	require.NotNil(t, cleared)
	require.Less(t, cleared.MaxAge, 0)

	_, err := f.auth.GetSession(t.Context(), sess.ID)
	require.Error(t, err)
}

func TestAuthStatus(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")
	sessCookie, _ := f.signIn("alice@example.com", "correct horse")

	rec := f.get("/auth/status", sessCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["authenticated"])
	user := body["user"].(map[string]any)
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, "user", user["role"])
}

func TestAuthStatusAnonymous(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/auth/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["authenticated"])
}

func TestBeginSocialRedirectsToProvider(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/auth/google?next=/profile")

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://mock-idp/auth", rec.Header().Get("Location"))

	state := cookieNamed(rec, "oauth_state")
	require.NotNil(t, state)
	require.NotEmpty(t, state.Value)
	require.NotNil(t, cookieNamed(rec, "oauth_nonce"))

	next := cookieNamed(rec, "post_signin_redirect")
	require.NotNil(t, next)
	require.Equal(t, "/profile", next.Value)
}

func TestBeginSocialUnknownProvider(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/auth/github")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSocialCallbackSignsIn(t *testing.T) {
	f := newWebFixture(t)

	begin := f.get("/auth/google")
	state := cookieNamed(begin, "oauth_state")
	nonce := cookieNamed(begin, "oauth_nonce")
	require.NotNil(t, state)
	require.NotNil(t, nonce)

	rec := f.get("/auth/callback/google?code=authcode&state="+state.Value, state, nonce)

	// The mock identity is Google-verified, so the callback lands home.
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.NotNil(t, cookieNamed(rec, SessionCookieName))

	// The one-shot flow cookies are cleared.
	clearedState := cookieNamed(rec, "oauth_state")
	require.NotNil(t, clearedState)
	require.Less(t, clearedState.MaxAge, 0)
}

func TestSocialCallbackRejectsForeignState(t *testing.T) {
	f := newWebFixture(t)

	begin := f.get("/auth/google")
	state := cookieNamed(begin, "oauth_state")
	require.NotNil(t, state)

	// The state parameter does not match the cookie issued to this browser.
	rec := f.get("/auth/callback/google?code=authcode&state=forged", state)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_state", decodeBody(t, rec)["error"])
	require.Nil(t, cookieNamed(rec, SessionCookieName))
}

func TestSocialCallbackMissingParams(t *testing.T) {
	f := newWebFixture(t)

	rec := f.get("/auth/callback/google")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_params", decodeBody(t, rec)["error"])
}

func TestResetPasswordAlwaysNeutral(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")

	for _, email := range []string{"alice@example.com", "stranger@example.com"} {
		rec := f.postForm("/reset-password", url.Values{"email": {email}})
		require.Equal(t, http.StatusOK, rec.Code, "email %s", email)
		require.Contains(t, rec.Body.String(), "a reset email is on its way")
	}
}

func TestSignInPageRedirectsWhenSignedIn(t *testing.T) {
	f := newWebFixture(t)
	f.seedUser("alice@example.com", "correct horse")
	sessCookie, _ := f.signIn("alice@example.com", "correct horse")

	rec := f.get("/signin", sessCookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
}
