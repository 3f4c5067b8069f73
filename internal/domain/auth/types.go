package auth

// Package auth contains domain-level types for identities, roles, and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleDisabled Role = "disabled"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleDisabled:
		return true
	default:
		return false
	}
}

// ProviderID identifies the identity provider that authenticated a user.
type ProviderID string

const (
	ProviderPassword ProviderID = "password"
	ProviderGoogle   ProviderID = "google.com"
	ProviderFacebook ProviderID = "facebook.com"
)

// Identity represents the directory's record of a user: credentials metadata,
// verification state, and the disabled flag. The directory is the system of
// record for this shape; adapters map provider payloads into it.
type Identity struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	Providers     []ProviderID
	Disabled      bool
}

// HasProvider reports whether the identity was linked through the given provider.
func (i Identity) HasProvider(p ProviderID) bool {
	for _, have := range i.Providers {
		if have == p {
			return true
		}
	}
	return false
}

// Session is the server-side record we persist for an authenticated user.
// ID is an opaque session identifier (e.g., random URL-safe string).
// DirectoryToken is the bearer token the directory issued at sign-in; it
// stays server-side and is needed for credential operations made on the
// user's behalf (re-sending verification, password change, self-delete).
type Session struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Email          string       `json:"email"`
	DisplayName    string       `json:"display_name"`
	Role           Role         `json:"role"`
	EmailVerified  bool         `json:"email_verified"`
	Providers      []ProviderID `json:"providers"`
	DirectoryToken string       `json:"directory_token,omitempty"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

// IsAdmin returns true if the session role is admin.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// IsDisabled returns true if the session role is disabled.
func (s Session) IsDisabled() bool { return s.Role == RoleDisabled }

// VerificationPolicy names, per identity provider, whether the email
// verification gate applies. Keeping the exemption an explicit rule rather
// than an inline special case makes the provider list a product decision.
type VerificationPolicy struct {
	ExemptProviders []ProviderID
}

// RequiresVerification reports whether the identity must verify its email
// before reaching authenticated pages.
func (p VerificationPolicy) RequiresVerification(id Identity) bool {
	if id.EmailVerified {
		return false
	}
	for _, exempt := range p.ExemptProviders {
		if id.HasProvider(exempt) {
			return false
		}
	}
	return true
}
