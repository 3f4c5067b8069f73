package identity

// Package identity implements the directory ports against the managed
// identity platform's REST API. Unprivileged account operations carry the
// public API key; privileged operations are authorized with a service-account
// JWT bearer token minted through the OAuth2 JWT grant.

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"golang.org/x/oauth2/jwt"
)

const defaultTimeout = 15 * time.Second

// Config holds configuration for the platform client.
type Config struct {
	BaseURL   string
	ProjectID string
	APIKey    string

	ServiceAccountEmail      string
	ServiceAccountPrivateKey string
	TokenURL                 string

	// HTTPClient serves unprivileged calls. Optional; defaults to a 15s-timeout client.
	HTTPClient *http.Client
	// AdminHTTPClient overrides the JWT-grant client for privileged calls (tests).
	AdminHTTPClient *http.Client
}

// Client talks to the identity platform. It implements both ports.Directory
// and ports.AdminDirectory.
type Client struct {
	baseURL   string
	projectID string
	apiKey    string

	httpClient  *http.Client
	adminClient *http.Client
}

var (
	_ ports.Directory      = (*Client)(nil)
	_ ports.AdminDirectory = (*Client)(nil)
)

// NewClient validates the config and builds a platform client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("identity: base URL is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("identity: project ID is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("identity: API key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	adminClient := cfg.AdminHTTPClient
	if adminClient == nil {
		if cfg.ServiceAccountEmail == "" || cfg.ServiceAccountPrivateKey == "" {
			return nil, errors.New("identity: service account credentials are required")
		}
		if err := validatePrivateKey(cfg.ServiceAccountPrivateKey); err != nil {
			return nil, fmt.Errorf("identity: service account key: %w", err)
		}
		jwtCfg := &jwt.Config{
			Email:      cfg.ServiceAccountEmail,
			PrivateKey: []byte(cfg.ServiceAccountPrivateKey),
			Scopes:     []string{"identity.admin"},
			TokenURL:   cfg.TokenURL,
		}
		if jwtCfg.TokenURL == "" {
			jwtCfg.TokenURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/token"
		}
		adminClient = jwtCfg.Client(context.Background())
		adminClient.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		projectID:   cfg.ProjectID,
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		adminClient: adminClient,
	}, nil
}

// validatePrivateKey fails fast on unparseable PEM material; the JWT grant
// would otherwise only surface the problem on the first privileged call.
func validatePrivateKey(pemKey string) error {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return errors.New("no PEM block found")
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return nil
	}
	return errors.New("unsupported private key format")
}

// accountPayload is the platform's wire shape for an account record.
type accountPayload struct {
	LocalID       string   `json:"localId"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"emailVerified"`
	DisplayName   string   `json:"displayName"`
	ProviderIDs   []string `json:"providerIds"`
	Disabled      bool     `json:"disabled"`
}

func (p accountPayload) identity() domainauth.Identity {
	providers := make([]domainauth.ProviderID, 0, len(p.ProviderIDs))
	for _, id := range p.ProviderIDs {
		providers = append(providers, domainauth.ProviderID(id))
	}
	return domainauth.Identity{
		ID:            p.LocalID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		DisplayName:   p.DisplayName,
		Providers:     providers,
		Disabled:      p.Disabled,
	}
}

type signInResponse struct {
	accountPayload
	IDToken string `json:"idToken"`
}

func (c *Client) SignUp(ctx context.Context, creds ports.Credentials) (ports.SignInResult, error) {
	var resp signInResponse
	err := c.post(ctx, c.httpClient, c.accountURL("signUp"), map[string]any{
		"email":             creds.Email,
		"password":          creds.Password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return ports.SignInResult{}, err
	}
	return ports.SignInResult{Identity: resp.identity(), Token: resp.IDToken}, nil
}

func (c *Client) SignIn(ctx context.Context, creds ports.Credentials) (ports.SignInResult, error) {
	var resp signInResponse
	err := c.post(ctx, c.httpClient, c.accountURL("signInWithPassword"), map[string]any{
		"email":             creds.Email,
		"password":          creds.Password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return ports.SignInResult{}, err
	}
	return ports.SignInResult{Identity: resp.identity(), Token: resp.IDToken}, nil
}

func (c *Client) ProviderSignIn(ctx context.Context, social ports.SocialIdentity) (ports.SignInResult, error) {
	var resp signInResponse
	err := c.post(ctx, c.httpClient, c.accountURL("signInWithIdp"), map[string]any{
		"providerId":        string(social.Provider),
		"subject":           social.Subject,
		"email":             social.Email,
		"emailVerified":     social.EmailVerified,
		"displayName":       social.DisplayName,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return ports.SignInResult{}, err
	}
	return ports.SignInResult{Identity: resp.identity(), Token: resp.IDToken}, nil
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.post(ctx, c.httpClient, c.accountURL("signOut"), map[string]any{"idToken": token}, nil)
}

func (c *Client) Lookup(ctx context.Context, token string) (domainauth.Identity, error) {
	var resp struct {
		Users []accountPayload `json:"users"`
	}
	if err := c.post(ctx, c.httpClient, c.accountURL("lookup"), map[string]any{"idToken": token}, &resp); err != nil {
		return domainauth.Identity{}, err
	}
	if len(resp.Users) == 0 {
		return domainauth.Identity{}, apperrors.Unauthorized("invalid or expired token")
	}
	return resp.Users[0].identity(), nil
}

func (c *Client) SendVerificationEmail(ctx context.Context, token string) error {
	return c.post(ctx, c.httpClient, c.accountURL("sendOobCode"), map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     token,
	}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	err := c.post(ctx, c.httpClient, c.accountURL("sendOobCode"), map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
	// Unknown emails are reported as success to avoid disclosing which exist.
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) (string, error) {
	var resp struct {
		IDToken string `json:"idToken"`
	}
	err := c.post(ctx, c.httpClient, c.accountURL("update"), map[string]any{
		"idToken":           token,
		"oldPassword":       oldPassword,
		"password":          newPassword,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.IDToken, nil
}

func (c *Client) UpdateProfile(ctx context.Context, token, displayName string) error {
	return c.post(ctx, c.httpClient, c.accountURL("update"), map[string]any{
		"idToken":     token,
		"displayName": displayName,
	}, nil)
}

func (c *Client) DeleteSelf(ctx context.Context, token string) error {
	return c.post(ctx, c.httpClient, c.accountURL("delete"), map[string]any{"idToken": token}, nil)
}

// GetUser implements ports.AdminDirectory.
func (c *Client) GetUser(ctx context.Context, id string) (domainauth.Identity, error) {
	var resp accountPayload
	if err := c.get(ctx, c.adminClient, c.adminURL("accounts/"+url.PathEscape(id)), &resp); err != nil {
		return domainauth.Identity{}, err
	}
	return resp.identity(), nil
}

// ListUsers implements ports.AdminDirectory.
func (c *Client) ListUsers(ctx context.Context) ([]domainauth.Identity, error) {
	var resp struct {
		Users []accountPayload `json:"users"`
	}
	if err := c.get(ctx, c.adminClient, c.adminURL("accounts"), &resp); err != nil {
		return nil, err
	}
	out := make([]domainauth.Identity, 0, len(resp.Users))
	for _, u := range resp.Users {
		out = append(out, u.identity())
	}
	return out, nil
}

// DeleteUser implements ports.AdminDirectory. A missing account is success:
// the orchestration layer may retry deletes.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	err := c.do(ctx, c.adminClient, http.MethodDelete, c.adminURL("accounts/"+url.PathEscape(id)), nil, nil)
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

// SetDisabled implements ports.AdminDirectory.
func (c *Client) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return c.post(ctx, c.adminClient, c.adminURL("accounts/"+url.PathEscape(id)+":setDisabled"),
		map[string]any{"disabled": disabled}, nil)
}

func (c *Client) accountURL(action string) string {
	return c.baseURL + "/v1/accounts:" + action + "?key=" + url.QueryEscape(c.apiKey)
}

func (c *Client) adminURL(path string) string {
	return c.baseURL + "/v1/projects/" + url.PathEscape(c.projectID) + "/" + path
}

func (c *Client) post(ctx context.Context, client *http.Client, rawURL string, body, out any) error {
	return c.do(ctx, client, http.MethodPost, rawURL, body, out)
}

func (c *Client) get(ctx context.Context, client *http.Client, rawURL string, out any) error {
	return c.do(ctx, client, http.MethodGet, rawURL, nil, out)
}

func (c *Client) do(ctx context.Context, client *http.Client, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "identity platform unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode identity platform response")
	}
	return nil
}

// apiError is the platform's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapAPIError translates platform error payloads into the application error
// taxonomy. Message constants follow the platform's SCREAMING_SNAKE style.
func mapAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var payload apiError
	_ = json.Unmarshal(raw, &payload)
	message := payload.Error.Message

	switch {
	case strings.HasPrefix(message, "EMAIL_EXISTS"):
		return apperrors.Conflict("an account with this email already exists")
	case strings.HasPrefix(message, "WEAK_PASSWORD"):
		return apperrors.ValidationField("password", "password is too weak")
	case strings.HasPrefix(message, "INVALID_EMAIL"):
		return apperrors.ValidationField("email", "invalid email address")
	case strings.HasPrefix(message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(message, "INVALID_PASSWORD"),
		strings.HasPrefix(message, "INVALID_LOGIN_CREDENTIALS"):
		return apperrors.Unauthorized("invalid email or password")
	case strings.HasPrefix(message, "USER_DISABLED"):
		return apperrors.Forbidden("this account has been disabled")
	case strings.HasPrefix(message, "INVALID_ID_TOKEN"), strings.HasPrefix(message, "TOKEN_EXPIRED"):
		return apperrors.Unauthorized("invalid or expired token")
	case strings.HasPrefix(message, "USER_NOT_FOUND"):
		return apperrors.NotFound("user not found")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound("user not found")
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.Unauthorized("identity platform rejected the credential")
	case resp.StatusCode == http.StatusForbidden:
		return apperrors.Forbidden("identity platform denied the operation")
	case resp.StatusCode >= 500:
		return apperrors.Unavailable(fmt.Sprintf("identity platform error (status %d)", resp.StatusCode))
	default:
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return apperrors.Internalf("identity platform error: %s (status %d)", message, resp.StatusCode)
	}
}
