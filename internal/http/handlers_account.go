package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/service"
)

// AccountHandlers provides the signed-in user's profile, settings, and
// verification pages.
type AccountHandlers struct {
	Svc      *service.AccountsService
	Auth     AuthFlow
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *AccountHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ProfilePage renders the profile form.
// GET /profile.
func (h *AccountHandlers) ProfilePage(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	profile, err := h.Svc.Profile(r.Context(), *sess)
	if err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "profile",
			Meta:     profileMeta(),
		})
		return
	}

	data := NewTemplateData(r, profileMeta())
	data.With("Profile", profile)
	h.render(w, "profile", data)
}

// ProfileUpdate saves the profile form.
// POST /profile.
func (h *AccountHandlers) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	profile := model.Profile{
		Bio:       r.FormValue("bio"),
		Location:  strings.TrimSpace(r.FormValue("location")),
		Gender:    strings.TrimSpace(r.FormValue("gender")),
		Language:  strings.TrimSpace(r.FormValue("language")),
		Birthdate: strings.TrimSpace(r.FormValue("birthdate")),
		Interests: splitInterests(r.FormValue("interests")),
	}

	if err := h.Svc.UpdateProfile(r.Context(), *sess, profile); err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "profile",
			Meta:     profileMeta(),
			Data:     map[string]any{"Profile": profile},
		})
		return
	}

	data := NewTemplateData(r, profileMeta())
	data.With("Profile", profile)
	data.WithNotice("Profile saved.")
	h.render(w, "profile", data)
}

// SettingsPage renders account settings.
// GET /settings.
func (h *AccountHandlers) SettingsPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "settings", NewTemplateData(r, settingsMeta()))
}

// DisplayNameUpdate changes the display name.
// POST /settings/display-name.
func (h *AccountHandlers) DisplayNameUpdate(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	name := r.FormValue("display_name")
	if err := h.Svc.UpdateDisplayName(r.Context(), *sess, name); err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "settings",
			Meta:     settingsMeta(),
			Data:     map[string]any{"DisplayName": name},
		})
		return
	}

	data := NewTemplateData(r, settingsMeta())
	// The context session still carries the old name.
	data.Session.DisplayName = strings.TrimSpace(name)
	data.WithNotice("Display name updated.")
	h.render(w, "settings", data)
}

// PasswordUpdate changes the password.
// POST /settings/password.
func (h *AccountHandlers) PasswordUpdate(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	err := h.Svc.UpdatePassword(r.Context(), *sess, r.FormValue("current_password"), r.FormValue("new_password"))
	if err != nil {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "settings",
			Meta:     settingsMeta(),
		})
		return
	}

	data := NewTemplateData(r, settingsMeta())
	data.WithNotice("Password changed. Your other sessions have been signed out.")
	h.render(w, "settings", data)
}

// DeleteAccount deletes the signed-in user's account and data.
// POST /settings/delete.
func (h *AccountHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	if r.FormValue("confirm") != sess.Email {
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r,
			Err:      confirmMismatchErr(),
			Template: "settings",
			Meta:     settingsMeta(),
		})
		return
	}

	if err := h.Svc.DeleteAccount(r.Context(), *sess); err != nil {
		// A partial failure still deleted the credentials: the user is
		// signed out either way, but they should see what remains.
		h.logger().ErrorContext(r.Context(), "account deletion incomplete", "user_id", sess.UserID, "error", err)
		RenderFormError(h.Renderer, FormErrorOpts{
			W: w, R: r, Err: err,
			Template: "settings",
			Meta:     settingsMeta(),
		})
		return
	}

	clearSessionCookie(w, r)
	http.Redirect(w, r, "/signed-out", http.StatusSeeOther)
}

// VerifyPage renders the email-verification gate.
// GET /verify-email.
func (h *AccountHandlers) VerifyPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if ok && !h.Auth.RequiresVerification(*sess) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, "verify", NewTemplateData(r, verifyMeta()))
}

// VerifyResend re-sends the verification email.
// POST /verify-email/resend.
func (h *AccountHandlers) VerifyResend(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	data := NewTemplateData(r, verifyMeta())
	if err := h.Svc.SendVerificationEmail(r.Context(), *sess); err != nil {
		h.logger().WarnContext(r.Context(), "resend verification email failed", "user_id", sess.UserID, "error", err)
		data.WithError("Could not send the email right now. Please try again in a moment.")
	} else {
		data.WithNotice("Verification email sent. Check your inbox.")
	}
	h.render(w, "verify", data)
}

// VerifyRefresh re-checks the verification flag after the user followed the
// emailed link.
// POST /verify-email/refresh.
func (h *AccountHandlers) VerifyRefresh(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	_, verified, err := h.Svc.RefreshVerification(r.Context(), *sess)
	if err != nil {
		h.logger().WarnContext(r.Context(), "verification refresh failed", "user_id", sess.UserID, "error", err)
	}
	if verified {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := NewTemplateData(r, verifyMeta())
	data.WithError("Your email is not verified yet. Follow the link in the email we sent you.")
	h.render(w, "verify", data)
}

func (h *AccountHandlers) render(w http.ResponseWriter, name string, data *TemplateData) {
	if err := h.Renderer.Render(w, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func profileMeta() PageMeta  { return PageMeta{Title: "Profile", CurrentPage: "profile"} }
func settingsMeta() PageMeta { return PageMeta{Title: "Settings", CurrentPage: "settings"} }
func verifyMeta() PageMeta   { return PageMeta{Title: "Verify your email", CurrentPage: "verify"} }

// clearSessionCookie expires the session cookie without handler state.
func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isRequestSecure(r),
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

// splitInterests parses the comma-separated interests field.
func splitInterests(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func confirmMismatchErr() error {
	return apperrors.ValidationField("confirm", "type your email address to confirm deletion")
}
