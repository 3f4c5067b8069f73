package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/service"
)

// AdminHandlers provides the admin console page and the privileged JSON
// endpoints behind it. The JSON endpoints are the only path to the
// directory's privileged surface; the service-account credential never
// reaches the browser.
type AdminHandlers struct {
	Svc      *service.AdminService
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *AdminHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ConsolePage renders the admin console with the merged user table.
// GET /admin?filter=<optional JMESPath expression>.
func (h *AdminHandlers) ConsolePage(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("filter"))

	data := NewTemplateData(r, adminMeta())
	data.With("Filter", filter)

	actor, _ := SessionFromContext(r.Context())
	rows, err := h.Svc.ListUsers(r.Context(), *actor, filter)
	if err != nil {
		if apperrors.IsValidation(err) {
			data.WithError(apperrors.UserMessage(err))
		} else {
			h.logger().ErrorContext(r.Context(), "admin user listing failed", "error", err)
			data.WithError("Could not load the user list. Please try again.")
		}
	}
	data.With("Users", rows)

	if err := h.Renderer.Render(w, "admin", data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// AuditPage renders the recent audit trail.
// GET /admin/audit.
func (h *AdminHandlers) AuditPage(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	data := NewTemplateData(r, PageMeta{Title: "Audit log", CurrentPage: "admin"})
	entries, err := h.Svc.AuditTrail(r.Context(), limit)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "audit trail fetch failed", "error", err)
		data.WithError("Could not load the audit log. Please try again.")
	}
	data.With("Entries", entries)

	if err := h.Renderer.Render(w, "audit", data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ListUsers returns the merged user table as JSON.
// GET /api/admin/users?filter=<optional JMESPath expression>.
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := SessionFromContext(r.Context())
	rows, err := h.Svc.ListUsers(r.Context(), *actor, strings.TrimSpace(r.URL.Query().Get("filter")))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": rows})
}

// GetUser returns one merged user row.
// GET /api/admin/users/{id}.
func (h *AdminHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	row, err := h.Svc.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

// targetRequest is the body shape shared by the user-targeting endpoints.
type targetRequest struct {
	UserID string `json:"user_id"`
}

// SetRole overwrites a user's role.
// POST /api/admin/setRole.
func (h *AdminHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	actor, _ := SessionFromContext(r.Context())
	if err := h.Svc.SetRole(r.Context(), *actor, req.UserID, domainauth.Role(req.Role)); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

// DisableUser blocks a user.
// POST /api/admin/disableUser?userId=<id>.
func (h *AdminHandlers) DisableUser(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.Svc.DisableUser, "user disabled")
}

// EnableUser unblocks a user.
// POST /api/admin/enableUser?userId=<id>.
func (h *AdminHandlers) EnableUser(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.Svc.EnableUser, "user enabled")
}

// DeleteUser removes a user's identity and application data.
// DELETE /api/admin/deleteUser?userId=<id>.
func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.Svc.DeleteUser, "user deleted")
}

// AuditTrail returns the recent audit entries as JSON.
// GET /api/admin/audit?limit=<n>.
func (h *AdminHandlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			WriteAppError(w, apperrors.ValidationField("limit", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	entries, err := h.Svc.AuditTrail(r.Context(), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// targetAction runs one of the user-targeting admin operations with the
// shared request shape and error mapping. The target id arrives either as
// the userId query parameter (the API contract) or in the JSON body (the
// console's fetch calls).
func (h *AdminHandlers) targetAction(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actor domainauth.Session, targetID string) error,
	message string,
) {
	targetID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if targetID == "" {
		var req targetRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		targetID = req.UserID
	}

	actor, _ := SessionFromContext(r.Context())
	if err := op(r.Context(), *actor, targetID); err != nil {
		// Partial failures reach the admin verbatim so they know what to retry.
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": message})
}

func adminMeta() PageMeta { return PageMeta{Title: "Admin console", CurrentPage: "admin"} }
