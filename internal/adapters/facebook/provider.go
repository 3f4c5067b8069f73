package facebook

// Package facebook implements the social sign-in port against Facebook
// Login. Facebook is plain OAuth2, not OIDC: there is no ID token to verify,
// so the asserted identity comes from a Graph API call made with the
// exchanged access token. Emails from the Graph API are not attested as
// verified; the identity always carries EmailVerified=false and relies on
// the verification policy to exempt the provider.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"golang.org/x/oauth2"
	oauthfacebook "golang.org/x/oauth2/facebook"
)

const defaultGraphURL = "https://graph.facebook.com/v19.0"

// Provider implements ports.SocialProvider for Facebook Login.
type Provider struct {
	config     *oauth2.Config
	graphURL   string
	httpClient *http.Client
}

var _ ports.SocialProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the Facebook provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	GraphURL     string       // Optional, defaults to the public Graph API
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// NewProvider creates a new Facebook provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	graphURL := config.GraphURL
	if graphURL == "" {
		graphURL = defaultGraphURL
	}

	endpoint := oauthfacebook.Endpoint
	if config.GraphURL != "" {
		// Non-default Graph URL means a test double; point the whole flow at it.
		endpoint = oauth2.Endpoint{AuthURL: graphURL + "/dialog/oauth", TokenURL: graphURL + "/oauth/access_token"}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     endpoint,
		},
		graphURL:   graphURL,
		httpClient: httpClient,
	}, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := randomString(32)
	if err != nil {
		return "", "", "", err
	}
	// Facebook has no nonce parameter; state alone binds the callback.
	nonce, err := randomString(32)
	if err != nil {
		return "", "", "", err
	}

	return p.config.AuthCodeURL(state), state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.SocialIdentity, error) {
	if in.Code == "" {
		return ports.SocialIdentity{}, apperrors.Validation("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "exchange code for token")
	}

	return p.fetchIdentity(ctx, token.AccessToken)
}

// graphUser is the Graph API /me payload.
type graphUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *Provider) fetchIdentity(ctx context.Context, accessToken string) (ports.SocialIdentity, error) {
	reqURL := p.graphURL + "/me?fields=id,name,email&access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build graph request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "graph API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ports.SocialIdentity{}, apperrors.Unauthorized("graph API rejected the token: " + string(body))
	}

	var user graphUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return ports.SocialIdentity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode graph response")
	}
	if user.ID == "" {
		return ports.SocialIdentity{}, apperrors.Unauthorized("graph API returned no user id")
	}

	return ports.SocialIdentity{
		Provider:      domainauth.ProviderFacebook,
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: false,
		DisplayName:   user.Name,
	}, nil
}

func randomString(length int) (string, error) {
	b := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) > length {
		s = s[:length]
	}
	return s, nil
}
