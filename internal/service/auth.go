package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/observability/statsd"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/google/uuid"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Directory  ports.Directory
	Sessions   ports.SessionStore
	Roles      ports.RoleStore
	Stream     ports.AuthStateStream
	Providers  map[domainauth.ProviderID]ports.SocialProvider
	Policy     domainauth.VerificationPolicy
	SessionTTL time.Duration
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// AuthService orchestrates sign-up and sign-in flows: it authenticates
// against the credential directory, resolves the application role, persists
// a session, and announces the change on the auth-state stream.
type AuthService struct {
	directory  ports.Directory
	sessions   ports.SessionStore
	roles      ports.RoleStore
	stream     ports.AuthStateStream
	providers  map[domainauth.ProviderID]ports.SocialProvider
	policy     domainauth.VerificationPolicy
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
}

const defaultSessionTTL = 12 * time.Hour

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		directory:  opts.Directory,
		sessions:   opts.Sessions,
		roles:      opts.Roles,
		stream:     opts.Stream,
		providers:  opts.Providers,
		policy:     opts.Policy,
		sessionTTL: ttl,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

// SignUp registers a new email-password account, sends the verification
// email, and establishes a session.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (domainauth.Session, error) {
	res, err := s.directory.SignUp(ctx, ports.Credentials{Email: email, Password: password})
	if err != nil {
		return domainauth.Session{}, err
	}

	// New accounts get the verification email immediately. Failure is not
	// fatal; the user can re-request from the verify page.
	if err := s.directory.SendVerificationEmail(ctx, res.Token); err != nil {
		s.logger.Warn("send verification email after sign-up failed", "user_id", res.Identity.ID, "error", err)
	}

	s.count("auth.sign_up", nil)
	return s.establishSession(ctx, res)
}

// SignIn authenticates email-password credentials and establishes a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (domainauth.Session, error) {
	res, err := s.directory.SignIn(ctx, ports.Credentials{Email: email, Password: password})
	if err != nil {
		s.count("auth.sign_in", map[string]string{"provider": "password", "outcome": "denied"})
		return domainauth.Session{}, err
	}

	sess, err := s.establishSession(ctx, res)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.count("auth.sign_in", map[string]string{"provider": "password", "outcome": "ok"})
	return sess, nil
}

// BeginSocialResult contains the redirect target and the callback-binding
// values the HTTP layer stores in short-lived cookies.
type BeginSocialResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginSocial initiates a social sign-in flow for the named provider.
func (s *AuthService) BeginSocial(ctx context.Context, provider domainauth.ProviderID, redirectURL string) (BeginSocialResult, error) {
	sp, ok := s.providers[provider]
	if !ok {
		return BeginSocialResult{}, apperrors.Validationf("sign-in with %s is not configured", provider)
	}

	authURL, state, nonce, err := sp.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return BeginSocialResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "begin social sign-in")
	}
	return BeginSocialResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteSocial finishes a social sign-in: it exchanges the code, signs the
// asserted identity into the directory (provisioning on first login), and
// establishes a session.
func (s *AuthService) CompleteSocial(ctx context.Context, provider domainauth.ProviderID, in ports.ExchangeInput) (domainauth.Session, error) {
	sp, ok := s.providers[provider]
	if !ok {
		return domainauth.Session{}, apperrors.Validationf("sign-in with %s is not configured", provider)
	}

	social, err := sp.Exchange(ctx, in)
	if err != nil {
		s.count("auth.sign_in", map[string]string{"provider": string(provider), "outcome": "denied"})
		return domainauth.Session{}, err
	}
	if social.Email == "" {
		return domainauth.Session{}, apperrors.ValidationField("email",
			"this account has no email address; an email is required to sign in")
	}

	res, err := s.directory.ProviderSignIn(ctx, social)
	if err != nil {
		return domainauth.Session{}, err
	}

	sess, err := s.establishSession(ctx, res)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.count("auth.sign_in", map[string]string{"provider": string(provider), "outcome": "ok"})
	return sess, nil
}

// establishSession resolves the role, rejects disabled accounts, persists
// the session, and publishes the signed-in event. An identity signing in for
// the first time gets its default role record written here.
func (s *AuthService) establishSession(ctx context.Context, res ports.SignInResult) (domainauth.Session, error) {
	role, err := s.resolveRole(ctx, res.Identity.ID)
	if err != nil {
		return domainauth.Session{}, err
	}
	if role == domainauth.RoleDisabled {
		// The role store can mark an account disabled before the directory
		// flag lands (or after a partial admin failure). Revoke the token we
		// just minted and refuse.
		if err := s.directory.SignOut(ctx, res.Token); err != nil {
			s.logger.Warn("revoke token for disabled account failed", "user_id", res.Identity.ID, "error", err)
		}
		return domainauth.Session{}, apperrors.Forbidden("this account has been disabled")
	}

	sess := domainauth.Session{
		ID:             uuid.NewString(),
		UserID:         res.Identity.ID,
		Email:          res.Identity.Email,
		DisplayName:    res.Identity.DisplayName,
		Role:           role,
		EmailVerified:  res.Identity.EmailVerified,
		Providers:      res.Identity.Providers,
		DirectoryToken: res.Token,
		ExpiresAt:      s.now().Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, err
	}

	s.publish(ctx, domainauth.Event{Type: domainauth.EventSignedIn, UserID: sess.UserID, At: s.now().UTC()})
	return sess, nil
}

// resolveRole reads the role record for an identity, lazily creating the
// default record on the first sign-in. The write is best-effort: the record
// is a soft invariant and a missing one still reads as a plain user.
func (s *AuthService) resolveRole(ctx context.Context, userID string) (domainauth.Role, error) {
	rec, err := s.roles.GetRecord(ctx, userID)
	switch {
	case apperrors.IsNotFound(err):
		if err := s.roles.SetRole(ctx, userID, domainauth.RoleUser, "sign-up"); err != nil {
			s.logger.Warn("write default role record failed", "user_id", userID, "error", err)
		}
		return domainauth.RoleUser, nil
	case err != nil:
		return "", err
	}
	if !rec.Role.Valid() {
		return domainauth.RoleUser, nil
	}
	return rec.Role, nil
}

// GetSession retrieves a live session by id.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (domainauth.Session, error) {
	if sessionID == "" {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	return s.sessions.Get(ctx, sessionID)
}

// ResolveBearer authenticates a directory bearer token presented in an
// Authorization header and returns an ephemeral session for it. Nothing is
// persisted; privileged operations re-verify the token and role themselves.
func (s *AuthService) ResolveBearer(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, apperrors.Unauthorized("a bearer token is required")
	}

	identity, err := s.directory.Lookup(ctx, token)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domainauth.Session{}, apperrors.Unauthorized("invalid or expired token")
		}
		return domainauth.Session{}, err
	}

	role, err := s.roles.GetRole(ctx, identity.ID)
	if err != nil {
		return domainauth.Session{}, err
	}

	return domainauth.Session{
		UserID:         identity.ID,
		Email:          identity.Email,
		DisplayName:    identity.DisplayName,
		Role:           role,
		EmailVerified:  identity.EmailVerified,
		Providers:      identity.Providers,
		DirectoryToken: token,
		ExpiresAt:      s.now().Add(s.sessionTTL),
	}, nil
}

// SignOut ends the session and revokes the directory token behind it.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if sess.DirectoryToken != "" {
		if err := s.directory.SignOut(ctx, sess.DirectoryToken); err != nil {
			s.logger.Warn("directory sign-out failed", "user_id", sess.UserID, "error", err)
		}
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	s.publish(ctx, domainauth.Event{Type: domainauth.EventSignedOut, UserID: sess.UserID, At: s.now().UTC()})
	s.count("auth.sign_out", nil)
	return nil
}

// RequiresVerification reports whether the session's user must verify their
// email before reaching authenticated pages.
func (s *AuthService) RequiresVerification(sess domainauth.Session) bool {
	return s.policy.RequiresVerification(domainauth.Identity{
		EmailVerified: sess.EmailVerified,
		Providers:     sess.Providers,
	})
}

// ResetPassword sends a password-reset email. Unknown addresses are silently
// accepted.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	return s.directory.ResetPassword(ctx, email)
}

func (s *AuthService) publish(ctx context.Context, event domainauth.Event) {
	if s.stream == nil {
		return
	}
	if err := s.stream.Publish(ctx, event); err != nil {
		s.logger.Warn("publish auth event failed", "type", event.Type, "user_id", event.UserID, "error", err)
	}
}

func (s *AuthService) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}
