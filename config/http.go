package config

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// Used for generating absolute URLs in verification emails and OAuth redirects.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimSuffix(strings.TrimSpace(h.BaseURL), "/")

	// Browsers refuse cookies scoped to a public suffix; an eTLD here would
	// silently break every session, so fall back to host-only cookies.
	domain := strings.TrimPrefix(strings.TrimSpace(h.CookieDomain), ".")
	if domain != "" {
		if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
			h.CookieDomain = ""
			return
		}
	}
	h.CookieDomain = domain
}
