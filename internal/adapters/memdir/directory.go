package memdir

// Package memdir provides an in-memory directory for local development and
// tests. It stands in for the external identity platform when AUTH_MODE=mock,
// including the out-of-band email codes the platform would normally send.

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// OOBKind distinguishes captured out-of-band codes.
type OOBKind string

const (
	OOBVerifyEmail   OOBKind = "verify_email"
	OOBResetPassword OOBKind = "reset_password"
)

// OOBCode is a captured out-of-band code the real platform would email.
type OOBCode struct {
	Kind  OOBKind
	Email string
	Code  string
}

type account struct {
	identity     domainauth.Identity
	passwordHash []byte
}

// Directory is an in-memory implementation of ports.Directory and
// ports.AdminDirectory. Safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]*account // keyed by user id
	byEmail  map[string]string   // lowercased email -> user id
	tokens   map[string]string   // bearer token -> user id
	oobCodes []OOBCode
}

var (
	_ ports.Directory      = (*Directory)(nil)
	_ ports.AdminDirectory = (*Directory)(nil)
)

// New creates an empty in-memory directory.
func New() *Directory {
	return &Directory{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]string),
	}
}

// Seed creates a pre-verified account, returning its id. Used to provision
// the bootstrap admin in mock mode. Panics on invalid input since seeding
// happens at startup with config-controlled values.
func (d *Directory) Seed(email, password string) string {
	res, err := d.SignUp(context.Background(), ports.Credentials{Email: email, Password: password})
	if err != nil {
		panic("memdir seed: " + err.Error())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	acc := d.accounts[res.Identity.ID]
	acc.identity.EmailVerified = true
	delete(d.tokens, res.Token)
	return res.Identity.ID
}

func (d *Directory) SignUp(_ context.Context, creds ports.Credentials) (ports.SignInResult, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return ports.SignInResult{}, err
	}
	if len(creds.Password) < minPasswordLength {
		return ports.SignInResult{}, apperrors.ValidationField("password", "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return ports.SignInResult{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "hash password")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[email]; exists {
		return ports.SignInResult{}, apperrors.Conflict("an account with this email already exists")
	}

	acc := &account{
		identity: domainauth.Identity{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: displayNameFromEmail(email),
			Providers:   []domainauth.ProviderID{domainauth.ProviderPassword},
		},
		passwordHash: hash,
	}
	d.accounts[acc.identity.ID] = acc
	d.byEmail[email] = acc.identity.ID

	return d.issueLocked(acc), nil
}

func (d *Directory) SignIn(_ context.Context, creds ports.Credentials) (ports.SignInResult, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return ports.SignInResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byEmail[email]
	if !ok {
		return ports.SignInResult{}, apperrors.Unauthorized("invalid email or password")
	}
	acc := d.accounts[id]
	if len(acc.passwordHash) == 0 {
		// Social-only account; no password credential exists.
		return ports.SignInResult{}, apperrors.Unauthorized("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(creds.Password)) != nil {
		return ports.SignInResult{}, apperrors.Unauthorized("invalid email or password")
	}
	if acc.identity.Disabled {
		return ports.SignInResult{}, apperrors.Forbidden("this account has been disabled")
	}

	return d.issueLocked(acc), nil
}

func (d *Directory) ProviderSignIn(_ context.Context, social ports.SocialIdentity) (ports.SignInResult, error) {
	email, err := normalizeEmail(social.Email)
	if err != nil {
		return ports.SignInResult{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc := d.lookupOrProvisionLocked(email, social)
	if acc.identity.Disabled {
		return ports.SignInResult{}, apperrors.Forbidden("this account has been disabled")
	}

	return d.issueLocked(acc), nil
}

func (d *Directory) lookupOrProvisionLocked(email string, social ports.SocialIdentity) *account {
	if id, ok := d.byEmail[email]; ok {
		acc := d.accounts[id]
		if !acc.identity.HasProvider(social.Provider) {
			acc.identity.Providers = append(acc.identity.Providers, social.Provider)
		}
		if social.EmailVerified {
			acc.identity.EmailVerified = true
		}
		return acc
	}

	displayName := social.DisplayName
	if displayName == "" {
		displayName = displayNameFromEmail(email)
	}
	acc := &account{
		identity: domainauth.Identity{
			ID:            uuid.NewString(),
			Email:         email,
			EmailVerified: social.EmailVerified,
			DisplayName:   displayName,
			Providers:     []domainauth.ProviderID{social.Provider},
		},
	}
	d.accounts[acc.identity.ID] = acc
	d.byEmail[email] = acc.identity.ID
	return acc
}

func (d *Directory) SignOut(_ context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens, token)
	return nil
}

func (d *Directory) Lookup(_ context.Context, token string) (domainauth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, err := d.accountForTokenLocked(token)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return acc.identity, nil
}

func (d *Directory) SendVerificationEmail(_ context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, err := d.accountForTokenLocked(token)
	if err != nil {
		return err
	}
	if acc.identity.EmailVerified {
		return nil
	}
	d.oobCodes = append(d.oobCodes, OOBCode{
		Kind:  OOBVerifyEmail,
		Email: acc.identity.Email,
		Code:  uuid.NewString(),
	})
	return nil
}

func (d *Directory) ResetPassword(_ context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Unknown emails are silently accepted to avoid disclosing which exist.
	if _, ok := d.byEmail[normalized]; !ok {
		return nil
	}
	d.oobCodes = append(d.oobCodes, OOBCode{
		Kind:  OOBResetPassword,
		Email: normalized,
		Code:  uuid.NewString(),
	})
	return nil
}

func (d *Directory) UpdatePassword(_ context.Context, token, oldPassword, newPassword string) (string, error) {
	if len(newPassword) < minPasswordLength {
		return "", apperrors.ValidationField("new_password", "password must be at least 8 characters")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc, err := d.accountForTokenLocked(token)
	if err != nil {
		return "", err
	}
	if len(acc.passwordHash) == 0 || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(oldPassword)) != nil {
		return "", apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "hash password")
	}
	acc.passwordHash = hash

	// Password changes revoke every outstanding token for the account.
	d.revokeTokensLocked(acc.identity.ID)
	return d.issueLocked(acc).Token, nil
}

func (d *Directory) UpdateProfile(_ context.Context, token, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return apperrors.ValidationField("display_name", "display name is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc, err := d.accountForTokenLocked(token)
	if err != nil {
		return err
	}
	acc.identity.DisplayName = displayName
	return nil
}

func (d *Directory) DeleteSelf(_ context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, err := d.accountForTokenLocked(token)
	if err != nil {
		return err
	}
	d.removeLocked(acc.identity.ID)
	return nil
}

// GetUser implements ports.AdminDirectory.
func (d *Directory) GetUser(_ context.Context, id string) (domainauth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.accounts[id]
	if !ok {
		return domainauth.Identity{}, apperrors.NotFoundf("user %s not found", id)
	}
	return acc.identity, nil
}

// ListUsers implements ports.AdminDirectory. Results are ordered by email for
// stable rendering.
func (d *Directory) ListUsers(_ context.Context) ([]domainauth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domainauth.Identity, 0, len(d.accounts))
	for _, acc := range d.accounts {
		out = append(out, acc.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// DeleteUser implements ports.AdminDirectory. Absent ids succeed.
func (d *Directory) DeleteUser(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(id)
	return nil
}

// SetDisabled implements ports.AdminDirectory. Disabling revokes all tokens.
func (d *Directory) SetDisabled(_ context.Context, id string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.accounts[id]
	if !ok {
		return apperrors.NotFoundf("user %s not found", id)
	}
	acc.identity.Disabled = disabled
	if disabled {
		d.revokeTokensLocked(id)
	}
	return nil
}

// ConfirmVerification marks the account owning the code as verified,
// simulating the user following the emailed link.
func (d *Directory) ConfirmVerification(code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, oob := range d.oobCodes {
		if oob.Kind != OOBVerifyEmail || oob.Code != code {
			continue
		}
		id, ok := d.byEmail[oob.Email]
		if !ok {
			return apperrors.NotFound("account for verification code no longer exists")
		}
		d.accounts[id].identity.EmailVerified = true
		d.oobCodes = append(d.oobCodes[:i], d.oobCodes[i+1:]...)
		return nil
	}
	return apperrors.NotFound("unknown or already-used verification code")
}

// LastOOBCode returns the most recent out-of-band code of the given kind for
// an email, or false when none was captured. Test and dev-mode helper.
func (d *Directory) LastOOBCode(kind OOBKind, email string) (OOBCode, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := len(d.oobCodes) - 1; i >= 0; i-- {
		if d.oobCodes[i].Kind == kind && d.oobCodes[i].Email == strings.ToLower(email) {
			return d.oobCodes[i], true
		}
	}
	return OOBCode{}, false
}

func (d *Directory) accountForTokenLocked(token string) (*account, error) {
	id, ok := d.tokens[token]
	if !ok {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	acc, ok := d.accounts[id]
	if !ok {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	return acc, nil
}

func (d *Directory) issueLocked(acc *account) ports.SignInResult {
	token := uuid.NewString()
	d.tokens[token] = acc.identity.ID
	return ports.SignInResult{Identity: acc.identity, Token: token}
}

func (d *Directory) revokeTokensLocked(id string) {
	for token, owner := range d.tokens {
		if owner == id {
			delete(d.tokens, token)
		}
	}
}

func (d *Directory) removeLocked(id string) {
	acc, ok := d.accounts[id]
	if !ok {
		return
	}
	delete(d.byEmail, acc.identity.Email)
	delete(d.accounts, id)
	d.revokeTokensLocked(id)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperrors.ValidationField("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperrors.ValidationField("email", "invalid email address")
	}
	return email, nil
}

func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return "User"
}
