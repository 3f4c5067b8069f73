package httpx

import "net/http"

// PageHandlers serves the static informational pages.
type PageHandlers struct {
	Renderer *TemplateRenderer
}

// Home renders the landing page.
// GET /.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, "home", NewTemplateData(r, PageMeta{Title: "Home", CurrentPage: "home"}))
}

// Privacy renders the privacy policy.
// GET /privacy.
func (h *PageHandlers) Privacy(w http.ResponseWriter, r *http.Request) {
	h.render(w, "privacy", NewTemplateData(r, PageMeta{Title: "Privacy policy", CurrentPage: "privacy"}))
}

// DataDeletion renders the data-deletion instructions social providers
// require apps to publish.
// GET /data-deletion.
func (h *PageHandlers) DataDeletion(w http.ResponseWriter, r *http.Request) {
	h.render(w, "data_deletion", NewTemplateData(r, PageMeta{Title: "Data deletion", CurrentPage: "data-deletion"}))
}

// SignedOut renders the post-sign-out page.
// GET /signed-out.
func (h *PageHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signed_out", NewTemplateData(r, PageMeta{Title: "Signed out", CurrentPage: "signed-out"}))
}

// NotFound renders the 404 page.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	data := NewTemplateData(r, PageMeta{Title: "Page not found", CurrentPage: ""})
	if err := h.Renderer.RenderStatus(w, http.StatusNotFound, "not_found", data); err != nil {
		http.NotFound(w, r)
	}
}

func (h *PageHandlers) render(w http.ResponseWriter, name string, data *TemplateData) {
	if err := h.Renderer.Render(w, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
