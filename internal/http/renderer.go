package httpx

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
)

//go:embed templates
var templateFS embed.FS

// TemplateRenderer renders HTML pages. Templates are parsed once at startup
// from the embedded filesystem; in dev mode they are re-read from disk on
// every request so edits show up without a restart.
type TemplateRenderer struct {
	t       *template.Template
	fsys    fs.FS
	devMode bool
	logger  *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	// TemplateFS overrides the embedded templates (optional, mainly for tests).
	TemplateFS fs.FS
	// DevMode re-parses templates from DiskPath on each render.
	DevMode bool
	// DiskPath is the template directory used in dev mode.
	DiskPath string
	Logger   *slog.Logger
}

// NewTemplateRenderer constructs a renderer by parsing the template set.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	fsys := cfg.TemplateFS
	if fsys == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	if cfg.DevMode {
		if cfg.DiskPath == "" {
			cfg.DiskPath = "internal/http/templates"
		}
		fsys = os.DirFS(cfg.DiskPath)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t, err := parseTemplates(fsys)
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err))
		return nil, err
	}

	return &TemplateRenderer{t: t, fsys: fsys, devMode: cfg.DevMode, logger: logger}, nil
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	return template.New("root").ParseFS(fsys, "*.tmpl", "pages/*.tmpl")
}

// Render executes the named page template into a buffer and writes it only
// when execution succeeds, so a template error never produces a half page.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data any) error {
	t := tr.t
	if tr.devMode {
		fresh, err := parseTemplates(tr.fsys)
		if err != nil {
			tr.logger.Error("template reload failed", slog.Any("error", err))
			return err
		}
		t = fresh
	}
	if t.Lookup(name) == nil {
		return errors.New("unknown template " + name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		tr.logger.Error("template execution failed",
			slog.String("template", name),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		tr.logger.Error("failed to write rendered template",
			slog.String("template", name),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// RenderStatus renders a page with an explicit HTTP status code.
func (tr *TemplateRenderer) RenderStatus(w http.ResponseWriter, code int, name string, data any) error {
	t := tr.t
	if tr.devMode {
		fresh, err := parseTemplates(tr.fsys)
		if err != nil {
			return err
		}
		t = fresh
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		tr.logger.Error("template execution failed",
			slog.String("template", name),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, err := buf.WriteTo(w)
	return err
}
