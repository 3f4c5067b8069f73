package httpx

import (
	"net/http"

	apperrors "github.com/codelane/authdeck/internal/errors"
)

// FormErrorOpts groups what a handler needs to re-render a page after a
// failed form submission.
type FormErrorOpts struct {
	W        http.ResponseWriter
	R        *http.Request
	Err      error
	Template string
	Meta     PageMeta
	// Data preserves submitted form values so the user does not retype them.
	Data map[string]any
}

// RenderFormError re-renders a form page carrying the error. Validation
// errors with a field become inline field errors; everything else becomes the
// page-level banner. Partial failures keep their full message: it tells the
// operator which half of the operation needs a retry.
func RenderFormError(tr *TemplateRenderer, opts FormErrorOpts) {
	data := NewTemplateData(opts.R, opts.Meta)

	msg := apperrors.UserMessage(opts.Err)
	if field := apperrors.GetField(opts.Err); field != "" {
		data.WithFieldErrors(map[string]string{field: msg})
		data.WithError("Please fix the highlighted fields.")
	} else {
		data.WithError(msg)
	}

	for k, v := range opts.Data {
		data.With(k, v)
	}

	code := StatusForError(opts.Err)
	if err := tr.RenderStatus(opts.W, code, opts.Template, data); err != nil {
		http.Error(opts.W, msg, code)
	}
}
