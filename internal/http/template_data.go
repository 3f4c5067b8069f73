package httpx

import (
	"net/http"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
)

// PageMeta carries per-page metadata used by the layout.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// TemplateData is the common payload every page template receives.
type TemplateData struct {
	Meta        PageMeta
	Session     *domainauth.Session
	CSRFToken   string
	Error       string
	Notice      string
	FieldErrors map[string]string
	Data        map[string]any
}

// NewTemplateData builds the base payload from the request: the session (if
// any), the CSRF token, and page metadata.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateData {
	sess, _ := SessionFromContext(r.Context())
	return &TemplateData{
		Meta:      meta,
		Session:   sess,
		CSRFToken: GetCSRFToken(r),
		Data:      map[string]any{},
	}
}

// WithError sets the page-level error banner message.
func (d *TemplateData) WithError(msg string) *TemplateData {
	d.Error = msg
	return d
}

// WithNotice sets the page-level success banner message.
func (d *TemplateData) WithNotice(msg string) *TemplateData {
	d.Notice = msg
	return d
}

// WithFieldErrors attaches field-level validation messages.
func (d *TemplateData) WithFieldErrors(fieldErrors map[string]string) *TemplateData {
	d.FieldErrors = fieldErrors
	return d
}

// With attaches an arbitrary key to the page data.
func (d *TemplateData) With(key string, value any) *TemplateData {
	d.Data[key] = value
	return d
}

// FieldError returns the message for a field, or empty. Convenience for
// templates.
func (d *TemplateData) FieldError(field string) string {
	return d.FieldErrors[field]
}
