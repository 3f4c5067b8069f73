package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the directory backing the authentication flows.
type AuthMode string

const (
	// AuthModePlatform uses the external identity platform.
	AuthModePlatform AuthMode = "platform"
	// AuthModeMock uses the in-memory directory (for development and tests only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "platform", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: platform, mock)", v)
	}
}

// GoogleOAuthConfig contains Google OIDC sign-in configuration.
type GoogleOAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback/google"`
	DiscoveryURL string `env:"DISCOVERY_URL" envDefault:"https://accounts.google.com"`
}

// Configured reports whether Google sign-in is fully configured.
func (g GoogleOAuthConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// FacebookOAuthConfig contains Facebook OAuth sign-in configuration.
type FacebookOAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback/facebook"`
}

// Configured reports whether Facebook sign-in is fully configured.
func (f FacebookOAuthConfig) Configured() bool {
	return f.ClientID != "" && f.ClientSecret != ""
}

// MockDirectoryConfig seeds the in-memory directory used when AUTH_MODE=mock.
type MockDirectoryConfig struct {
	AdminEmail    string `env:"ADMIN_EMAIL"    envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin-dev-password"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which directory implementation to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"platform"`

	// SessionTTL caps server-side session lifetime.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"12h"`

	// VerificationExemptProviders lists identity providers whose users skip
	// the email-verification gate. The exemption is an explicit product rule,
	// not an inline special case.
	VerificationExemptProviders []string `env:"AUTH_VERIFICATION_EXEMPT_PROVIDERS" envDefault:"facebook.com" envSeparator:";"`

	// Google sign-in configuration.
	Google GoogleOAuthConfig `envPrefix:"GOOGLE_OAUTH_"`

	// Facebook sign-in configuration.
	Facebook FacebookOAuthConfig `envPrefix:"FACEBOOK_OAUTH_"`

	// Mock directory seed (used when Mode=mock).
	Mock MockDirectoryConfig `envPrefix:"MOCK_DIRECTORY_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL <= 0 {
		a.SessionTTL = 12 * time.Hour
	}
	cleaned := a.VerificationExemptProviders[:0]
	for _, p := range a.VerificationExemptProviders {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	a.VerificationExemptProviders = cleaned
}
