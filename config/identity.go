package config

import (
	"errors"
	"strings"
)

// IdentityConfig describes the external identity platform. The API key is the
// public client credential; the service-account pair is the privileged
// credential the proxy endpoints use and must never reach a client-visible
// surface.
type IdentityConfig struct {
	// BaseURL is the platform API root, e.g. "https://identity.example.com".
	BaseURL string `env:"BASE_URL"`

	// ProjectID scopes platform calls to one tenant.
	ProjectID string `env:"PROJECT_ID"`

	// APIKey authorizes unprivileged account operations.
	APIKey string `env:"API_KEY"`

	// ServiceAccountEmail and ServiceAccountPrivateKey mint the privileged
	// bearer token for admin operations. PEM newlines may arrive escaped from
	// the environment.
	ServiceAccountEmail      string `env:"SERVICE_ACCOUNT_EMAIL"`
	ServiceAccountPrivateKey string `env:"SERVICE_ACCOUNT_PRIVATE_KEY,unset"`

	// TokenURL is the OAuth token endpoint for the service-account JWT grant.
	TokenURL string `env:"TOKEN_URL"`
}

// Sanitize normalises values loaded from env.
func (c *IdentityConfig) Sanitize() {
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ServiceAccountEmail = strings.TrimSpace(c.ServiceAccountEmail)
	// Private keys pasted into env files often carry literal "\n" sequences.
	c.ServiceAccountPrivateKey = strings.ReplaceAll(c.ServiceAccountPrivateKey, `\n`, "\n")
}

// Validate checks that the platform credentials are complete. Only called
// when AUTH_MODE=platform; mock mode needs none of them.
func (c *IdentityConfig) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "IDENTITY_BASE_URL")
	}
	if c.ProjectID == "" {
		missing = append(missing, "IDENTITY_PROJECT_ID")
	}
	if c.APIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}
	if c.ServiceAccountEmail == "" {
		missing = append(missing, "IDENTITY_SERVICE_ACCOUNT_EMAIL")
	}
	if c.ServiceAccountPrivateKey == "" {
		missing = append(missing, "IDENTITY_SERVICE_ACCOUNT_PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return errors.New("identity platform configuration incomplete: missing " + strings.Join(missing, ", "))
	}
	return nil
}
