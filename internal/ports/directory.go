package ports

// Package ports defines interfaces (hexagonal ports) for the identity
// directory, document stores, and session infrastructure. Implementations
// live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
)

// Credentials carries an email-password pair for sign-up and sign-in.
type Credentials struct {
	Email    string
	Password string
}

// SocialIdentity is the claim set an external provider asserts about a user
// after a completed social sign-in.
type SocialIdentity struct {
	Provider      domainauth.ProviderID
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// SignInResult pairs the directory identity with the bearer token the
// directory issued for it.
type SignInResult struct {
	Identity domainauth.Identity
	Token    string
}

// Directory is the capability interface over the external credential
// service's user-facing operations. All durable credential state (password
// hashes, verification flags, disabled flags) lives behind it; this codebase
// never sees a password hash.
type Directory interface {
	// SignUp creates an identity from email-password credentials and signs it in.
	SignUp(ctx context.Context, creds Credentials) (SignInResult, error)

	// SignIn authenticates email-password credentials. Disabled identities are rejected.
	SignIn(ctx context.Context, creds Credentials) (SignInResult, error)

	// ProviderSignIn signs in (provisioning on first login) via a social identity.
	ProviderSignIn(ctx context.Context, social SocialIdentity) (SignInResult, error)

	// SignOut revokes the bearer token.
	SignOut(ctx context.Context, token string) error

	// Lookup resolves a bearer token to the identity it represents.
	Lookup(ctx context.Context, token string) (domainauth.Identity, error)

	// SendVerificationEmail sends the verification link for the token's identity.
	SendVerificationEmail(ctx context.Context, token string) error

	// ResetPassword sends a password-reset email. Unknown emails are not an error,
	// to avoid disclosing which addresses exist.
	ResetPassword(ctx context.Context, email string) error

	// UpdatePassword changes the password after re-verifying the current one.
	// Returns a fresh token; the old one is revoked.
	UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) (string, error)

	// UpdateProfile updates the identity's display name.
	UpdateProfile(ctx context.Context, token, displayName string) error

	// DeleteSelf deletes the token's own identity.
	DeleteSelf(ctx context.Context, token string) error
}

// AdminDirectory is the privileged surface of the credential service,
// reachable only with the service-account credential. The proxy endpoints
// are the sole callers.
type AdminDirectory interface {
	// GetUser fetches an identity by id.
	GetUser(ctx context.Context, id string) (domainauth.Identity, error)

	// ListUsers returns every identity in the directory.
	ListUsers(ctx context.Context) ([]domainauth.Identity, error)

	// DeleteUser removes an identity. Deleting an already-absent identity
	// succeeds; the orchestration layer may retry.
	DeleteUser(ctx context.Context, id string) error

	// SetDisabled marks an identity disabled or enabled. Setting the flag to
	// its current value succeeds.
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
