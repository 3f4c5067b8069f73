package oidc

// Package oidc implements the social sign-in port for OIDC-compliant
// providers (Google). Discovery runs once at construction; ID tokens are
// verified against the provider JWKS with nonce checking.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"golang.org/x/oauth2"
)

// Provider implements ports.SocialProvider using OIDC/OAuth2.
type Provider struct {
	providerID domainauth.ProviderID
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.SocialProvider = (*Provider)(nil)

// ProviderConfig holds configuration for an OIDC provider.
type ProviderConfig struct {
	// ProviderID is the directory's name for this provider (e.g. "google.com").
	ProviderID   domainauth.ProviderID
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// NewProvider creates a new OIDC provider, fetching the discovery document once.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ProviderID == "" {
		return nil, errors.New("provider ID is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{
		providerID: config.ProviderID,
		httpClient: httpClient,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	scope := config.Scope
	if scope == "" {
		scope = "openid email profile"
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.SocialIdentity, error) {
	if in.Code == "" {
		return ports.SocialIdentity{}, apperrors.Validation("authorization code is required")
	}
	if in.Nonce == "" {
		return ports.SocialIdentity{}, apperrors.Validation("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "exchange code for token")
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return ports.SocialIdentity{}, apperrors.Unauthorized("missing id_token in token response")
	}

	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "verify id_token")
	}

	var claims idTokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "parse id_token claims")
	}
	if claims.Nonce != in.Nonce {
		return ports.SocialIdentity{}, apperrors.Unauthorized("invalid nonce")
	}

	social := claims.socialIdentity(p.providerID)
	if social.Email == "" || social.Subject == "" {
		if err := p.fillFromUserInfo(ctx, token, &social); err != nil {
			return ports.SocialIdentity{}, err
		}
	}
	return social, nil
}

// idTokenClaims covers the standard OIDC claim set Google issues.
type idTokenClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	Nonce         string `json:"nonce"`
}

func (c idTokenClaims) socialIdentity(provider domainauth.ProviderID) ports.SocialIdentity {
	name := c.Name
	if name == "" {
		name = c.GivenName
	}
	return ports.SocialIdentity{
		Provider:      provider,
		Subject:       c.Sub,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		DisplayName:   name,
	}
}

func (p *Provider) fillFromUserInfo(ctx context.Context, token *oauth2.Token, social *ports.SocialIdentity) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "fetch user info")
	}

	var claims idTokenClaims
	if err := ui.Claims(&claims); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode user info")
	}
	if social.Subject == "" {
		social.Subject = claims.Sub
	}
	if social.Email == "" {
		social.Email = claims.Email
		social.EmailVerified = claims.EmailVerified
	}
	if social.DisplayName == "" {
		social.DisplayName = claims.Name
	}
	return nil
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}
