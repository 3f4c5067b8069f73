package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
)

// AccountsServiceOptions groups dependencies for AccountsService.
type AccountsServiceOptions struct {
	Directory ports.Directory
	Profiles  ports.ProfileStore
	Roles     ports.RoleStore
	Sessions  ports.SessionStore
	Stream    ports.AuthStateStream
	Logger    *slog.Logger
}

// AccountsService covers the signed-in user's self-service operations:
// profile document edits, display name and password changes, verification
// state, and account deletion.
type AccountsService struct {
	directory ports.Directory
	profiles  ports.ProfileStore
	roles     ports.RoleStore
	sessions  ports.SessionStore
	stream    ports.AuthStateStream
	logger    *slog.Logger
	now       func() time.Time
}

// NewAccountsService constructs a new AccountsService.
func NewAccountsService(opts AccountsServiceOptions) *AccountsService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountsService{
		directory: opts.Directory,
		profiles:  opts.Profiles,
		roles:     opts.Roles,
		sessions:  opts.Sessions,
		stream:    opts.Stream,
		logger:    logger,
		now:       time.Now,
	}
}

// Profile fetches the user's profile document. A user who never saved one
// gets an empty document rather than an error.
func (s *AccountsService) Profile(ctx context.Context, sess domainauth.Session) (model.Profile, error) {
	p, err := s.profiles.Get(ctx, sess.UserID)
	if apperrors.IsNotFound(err) {
		return model.Profile{UserID: sess.UserID}, nil
	}
	if err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// UpdateProfile validates and saves the user's profile document. The user id
// comes from the session; a submitted id is ignored.
func (s *AccountsService) UpdateProfile(ctx context.Context, sess domainauth.Session, profile model.Profile) error {
	profile.UserID = sess.UserID
	profile.Bio = strings.TrimSpace(profile.Bio)
	return s.profiles.Upsert(ctx, profile)
}

// UpdateDisplayName changes the directory display name and refreshes the
// session record to match.
func (s *AccountsService) UpdateDisplayName(ctx context.Context, sess domainauth.Session, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return apperrors.ValidationField("display_name", "display name is required")
	}

	if err := s.directory.UpdateProfile(ctx, sess.DirectoryToken, displayName); err != nil {
		return err
	}

	sess.DisplayName = displayName
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("refresh session after display name change failed", "user_id", sess.UserID, "error", err)
	}
	s.publish(ctx, domainauth.Event{Type: domainauth.EventUpdated, UserID: sess.UserID, At: s.now().UTC()})
	return nil
}

// UpdatePassword re-verifies the current password, sets the new one, and
// swaps the session's directory token for the fresh one the directory
// issued. Other sessions of the user lose their tokens and fall back to
// sign-in.
func (s *AccountsService) UpdatePassword(ctx context.Context, sess domainauth.Session, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperrors.ValidationField("new_password", "new password is required")
	}

	token, err := s.directory.UpdatePassword(ctx, sess.DirectoryToken, oldPassword, newPassword)
	if err != nil {
		return err
	}

	sess.DirectoryToken = token
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}
	s.publish(ctx, domainauth.Event{Type: domainauth.EventUpdated, UserID: sess.UserID, At: s.now().UTC()})
	return nil
}

// SendVerificationEmail re-sends the verification email for the session's user.
func (s *AccountsService) SendVerificationEmail(ctx context.Context, sess domainauth.Session) error {
	return s.directory.SendVerificationEmail(ctx, sess.DirectoryToken)
}

// RefreshVerification re-reads the directory record and, when the email has
// been verified since sign-in, updates the session. Returns the refreshed
// session and whether the email is now verified.
func (s *AccountsService) RefreshVerification(ctx context.Context, sess domainauth.Session) (domainauth.Session, bool, error) {
	identity, err := s.directory.Lookup(ctx, sess.DirectoryToken)
	if err != nil {
		return sess, sess.EmailVerified, err
	}
	if identity.EmailVerified == sess.EmailVerified {
		return sess, sess.EmailVerified, nil
	}

	sess.EmailVerified = identity.EmailVerified
	if err := s.sessions.Save(ctx, sess); err != nil {
		return sess, identity.EmailVerified, err
	}
	s.publish(ctx, domainauth.Event{Type: domainauth.EventUpdated, UserID: sess.UserID, At: s.now().UTC()})
	return sess, identity.EmailVerified, nil
}

// DeleteAccount removes the user's directory identity, then their role
// record, profile, and sessions. Cleanup failures after the identity is
// gone surface as a partial failure; retrying is safe because absent
// records delete as no-ops.
func (s *AccountsService) DeleteAccount(ctx context.Context, sess domainauth.Session) error {
	if err := s.directory.DeleteSelf(ctx, sess.DirectoryToken); err != nil {
		return err
	}

	var cleanupErr error
	if err := s.roles.Delete(ctx, sess.UserID); err != nil {
		cleanupErr = err
	}
	if err := s.profiles.Delete(ctx, sess.UserID); err != nil && cleanupErr == nil {
		cleanupErr = err
	}
	if err := s.sessions.DeleteByUser(ctx, sess.UserID); err != nil && cleanupErr == nil {
		cleanupErr = err
	}

	s.publish(ctx, domainauth.Event{Type: domainauth.EventDeleted, UserID: sess.UserID, At: s.now().UTC()})

	if cleanupErr != nil {
		return apperrors.PartialFailuref(
			"your credentials were deleted, but removing the rest of your data failed: %v", cleanupErr)
	}
	return nil
}

func (s *AccountsService) publish(ctx context.Context, event domainauth.Event) {
	if s.stream == nil {
		return
	}
	if err := s.stream.Publish(ctx, event); err != nil {
		s.logger.Warn("publish auth event failed", "type", event.Type, "user_id", event.UserID, "error", err)
	}
}
