package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/observability/notify"
	"github.com/codelane/authdeck/internal/observability/statsd"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/codelane/authdeck/internal/service/failurenotifier"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"
)

// TokenLookup is the narrow slice of the user-facing directory the admin
// gate uses to re-verify the caller's bearer token.
type TokenLookup interface {
	Lookup(ctx context.Context, token string) (domainauth.Identity, error)
}

// AdminServiceOptions groups dependencies for AdminService.
type AdminServiceOptions struct {
	Directory ports.AdminDirectory
	Tokens    TokenLookup
	Roles     ports.RoleStore
	Profiles  ports.ProfileStore
	Sessions  ports.SessionStore
	Audit     ports.AuditLog
	Stream    ports.AuthStateStream
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Notifier  *failurenotifier.Service
}

// AdminService orchestrates privileged operations against a target user.
// Disable, enable, and delete each touch both the role store and the
// credential directory; the two writes are not atomic, so every operation
// fixes an order and reports a partial failure when only the first write
// lands. The error message names which side is stale so an operator can
// reconcile by retrying.
type AdminService struct {
	directory ports.AdminDirectory
	tokens    TokenLookup
	roles     ports.RoleStore
	profiles  ports.ProfileStore
	sessions  ports.SessionStore
	audit     ports.AuditLog
	stream    ports.AuthStateStream
	logger    *slog.Logger
	metrics   statsd.Sink
	notifier  *failurenotifier.Service
	now       func() time.Time
}

// NewAdminService constructs a new AdminService.
func NewAdminService(opts AdminServiceOptions) *AdminService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		directory: opts.Directory,
		tokens:    opts.Tokens,
		roles:     opts.Roles,
		profiles:  opts.Profiles,
		sessions:  opts.Sessions,
		audit:     opts.Audit,
		stream:    opts.Stream,
		logger:    logger,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		now:       time.Now,
	}
}

// ListUsers returns the merged admin user table: every directory identity
// joined with its role record. The directory listing and the role listing
// run in parallel. An optional JMESPath expression filters the rows, e.g.
// `[?role=='disabled']` or `[?!email_verified]`.
func (s *AdminService) ListUsers(ctx context.Context, actor domainauth.Session, filter string) ([]model.UserRow, error) {
	if err := s.requireActorAdmin(ctx, actor); err != nil {
		return nil, err
	}

	var (
		identities []domainauth.Identity
		records    []model.RoleRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		identities, err = s.directory.ListUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.roles.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]model.RoleRecord, len(records))
	for _, rec := range records {
		byID[rec.UserID] = rec
	}

	rows := make([]model.UserRow, 0, len(identities))
	for _, id := range identities {
		row := model.UserRow{
			ID:            id.ID,
			Email:         id.Email,
			DisplayName:   id.DisplayName,
			EmailVerified: id.EmailVerified,
			Disabled:      id.Disabled,
			Role:          domainauth.RoleUser,
		}
		if rec, ok := byID[id.ID]; ok {
			if rec.Role.Valid() {
				row.Role = rec.Role
			}
			row.RoleUpdatedAt = rec.UpdatedAt
			row.RoleUpdatedBy = rec.UpdatedBy
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })

	if filter == "" {
		return rows, nil
	}
	return filterRows(rows, filter)
}

// filterRows applies a JMESPath expression to the row set.
func filterRows(rows []model.UserRow, filter string) ([]model.UserRow, error) {
	// Round-trip through JSON so the expression sees the wire field names.
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal user rows")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "unmarshal user rows")
	}

	result, err := jmespath.Search(filter, generic)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid filter expression %q", filter)
	}

	filtered, err := json.Marshal(result)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal filtered rows")
	}
	var out []model.UserRow
	if err := json.Unmarshal(filtered, &out); err != nil {
		return nil, apperrors.Validationf("filter expression %q must select user rows", filter)
	}
	return out, nil
}

// GetUser fetches the merged row for one user.
func (s *AdminService) GetUser(ctx context.Context, targetID string) (model.UserRow, error) {
	identity, err := s.directory.GetUser(ctx, targetID)
	if err != nil {
		return model.UserRow{}, err
	}

	row := model.UserRow{
		ID:            identity.ID,
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		EmailVerified: identity.EmailVerified,
		Disabled:      identity.Disabled,
		Role:          domainauth.RoleUser,
	}
	rec, err := s.roles.GetRecord(ctx, targetID)
	if err == nil {
		if rec.Role.Valid() {
			row.Role = rec.Role
		}
		row.RoleUpdatedAt = rec.UpdatedAt
		row.RoleUpdatedBy = rec.UpdatedBy
	} else if !apperrors.IsNotFound(err) {
		return model.UserRow{}, err
	}
	return row, nil
}

// requireActorAdmin re-verifies the caller before any privileged operation:
// the bearer token must still be valid at the directory and the role record
// must still read admin. The session carries the state it had at sign-in; a
// demotion, disable, or token revocation since then must take effect
// immediately, so the directory and the store are the authority here, not
// the session.
func (s *AdminService) requireActorAdmin(ctx context.Context, actor domainauth.Session) error {
	if s.tokens != nil {
		identity, err := s.tokens.Lookup(ctx, actor.DirectoryToken)
		switch {
		case apperrors.IsNotFound(err) || apperrors.IsUnauthorized(err):
			return apperrors.Unauthorized("session credential is no longer valid")
		case err != nil:
			return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "verify caller token")
		case identity.Disabled || identity.ID != actor.UserID:
			return apperrors.Forbidden("admin role required")
		}
	}

	role, err := s.roles.GetRole(ctx, actor.UserID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "verify caller role")
	}
	if role != domainauth.RoleAdmin {
		return apperrors.Forbidden("admin role required")
	}
	return nil
}

// SetRole overwrites the target's role record. Admins cannot change their
// own role; that path leads to consoles with no admins left.
func (s *AdminService) SetRole(ctx context.Context, actor domainauth.Session, targetID string, role domainauth.Role) error {
	if err := s.requireActorAdmin(ctx, actor); err != nil {
		return err
	}
	if targetID == "" {
		return apperrors.ValidationField("target_id", "target user id is required")
	}
	if targetID == actor.UserID {
		return apperrors.Validation("you cannot change your own role")
	}
	if !role.Valid() {
		return apperrors.ValidationField("role", "role must be one of user, admin, disabled")
	}

	if err := s.roles.SetRole(ctx, targetID, role, actor.UserID); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionSetRole, "role="+string(role), model.AuditOutcomeFailed)
		return err
	}

	s.record(ctx, actor.UserID, targetID, model.AuditActionSetRole, "role="+string(role), model.AuditOutcomeOK)
	s.publish(ctx, domainauth.Event{Type: domainauth.EventUpdated, UserID: targetID, At: s.now().UTC()})
	s.count("admin.set_role", map[string]string{"role": string(role)})
	return nil
}

// DisableUser blocks a user: role record first, then the directory flag.
// The order guarantees the app-level gate engages even if the privileged
// call fails; the partial-failure error says the directory still accepts
// the user's credentials.
func (s *AdminService) DisableUser(ctx context.Context, actor domainauth.Session, targetID string) error {
	if err := s.requireActorAdmin(ctx, actor); err != nil {
		return err
	}
	if targetID == "" {
		return apperrors.ValidationField("target_id", "target user id is required")
	}
	if targetID == actor.UserID {
		return apperrors.Validation("you cannot disable your own account")
	}

	if err := s.roles.SetRole(ctx, targetID, domainauth.RoleDisabled, actor.UserID); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionDisableUser, "", model.AuditOutcomeFailed)
		return err
	}

	if err := s.directory.SetDisabled(ctx, targetID, true); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionDisableUser, "directory disable failed", model.AuditOutcomePartial)
		s.count("admin.partial_failure", map[string]string{"action": "disable_user"})
		s.alertPartialFailure(ctx, actor.UserID, targetID, model.AuditActionDisableUser, err)
		return apperrors.PartialFailuref(
			"the user's role was set to disabled, but disabling their credentials failed: %v; retry to disable sign-in at the directory", err)
	}

	s.dropSessions(ctx, targetID)
	s.record(ctx, actor.UserID, targetID, model.AuditActionDisableUser, "", model.AuditOutcomeOK)
	s.publish(ctx, domainauth.Event{Type: domainauth.EventDisabled, UserID: targetID, At: s.now().UTC()})
	s.count("admin.disable_user", nil)
	return nil
}

// EnableUser unblocks a user: directory flag first, then the role record.
// The reverse order from DisableUser, so a failure can never leave a user
// signed in at the directory while the app still shows them enabled.
func (s *AdminService) EnableUser(ctx context.Context, actor domainauth.Session, targetID string) error {
	if err := s.requireActorAdmin(ctx, actor); err != nil {
		return err
	}
	if targetID == "" {
		return apperrors.ValidationField("target_id", "target user id is required")
	}

	if err := s.directory.SetDisabled(ctx, targetID, false); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionEnableUser, "directory enable failed", model.AuditOutcomeFailed)
		return err
	}

	if err := s.roles.SetRole(ctx, targetID, domainauth.RoleUser, actor.UserID); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionEnableUser, "role write failed", model.AuditOutcomePartial)
		s.count("admin.partial_failure", map[string]string{"action": "enable_user"})
		s.alertPartialFailure(ctx, actor.UserID, targetID, model.AuditActionEnableUser, err)
		return apperrors.PartialFailuref(
			"the user's credentials were re-enabled, but their role record still reads disabled: %v; retry to restore their role", err)
	}

	s.record(ctx, actor.UserID, targetID, model.AuditActionEnableUser, "", model.AuditOutcomeOK)
	s.publish(ctx, domainauth.Event{Type: domainauth.EventUpdated, UserID: targetID, At: s.now().UTC()})
	s.count("admin.enable_user", nil)
	return nil
}

// DeleteUser removes the target's role record and profile, then the
// directory identity. The record goes first so nothing app-side can outlive
// the identity; the directory treats a missing identity as deleted, so the
// whole operation is retryable after a partial failure.
func (s *AdminService) DeleteUser(ctx context.Context, actor domainauth.Session, targetID string) error {
	if err := s.requireActorAdmin(ctx, actor); err != nil {
		return err
	}
	if targetID == "" {
		return apperrors.ValidationField("target_id", "target user id is required")
	}
	if targetID == actor.UserID {
		return apperrors.Validation("you cannot delete your own account from the admin console")
	}

	if err := s.cleanupUserData(ctx, targetID); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionDeleteUser, "data cleanup failed", model.AuditOutcomeFailed)
		return err
	}

	if err := s.directory.DeleteUser(ctx, targetID); err != nil {
		s.record(ctx, actor.UserID, targetID, model.AuditActionDeleteUser, "directory delete failed", model.AuditOutcomePartial)
		s.count("admin.partial_failure", map[string]string{"action": "delete_user"})
		s.alertPartialFailure(ctx, actor.UserID, targetID, model.AuditActionDeleteUser, err)
		return apperrors.PartialFailuref(
			"the user's application data was removed, but deleting their credentials failed: %v; retry to delete the identity", err)
	}

	s.dropSessions(ctx, targetID)
	s.record(ctx, actor.UserID, targetID, model.AuditActionDeleteUser, "", model.AuditOutcomeOK)
	s.publish(ctx, domainauth.Event{Type: domainauth.EventDeleted, UserID: targetID, At: s.now().UTC()})
	s.count("admin.delete_user", nil)
	return nil
}

func (s *AdminService) cleanupUserData(ctx context.Context, targetID string) error {
	if err := s.roles.Delete(ctx, targetID); err != nil {
		return err
	}
	if s.profiles != nil {
		if err := s.profiles.Delete(ctx, targetID); err != nil {
			return err
		}
	}
	return nil
}

// AuditTrail returns the newest audit entries, most recent first.
func (s *AdminService) AuditTrail(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	return s.audit.Recent(ctx, limit)
}

// dropSessions ends the target's live sessions. Failure is logged, not
// returned: the session mirror retires them on the published event anyway.
func (s *AdminService) dropSessions(ctx context.Context, targetID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.DeleteByUser(ctx, targetID); err != nil {
		s.logger.Warn("drop sessions for user failed", "user_id", targetID, "error", err)
	}
}

// record appends to the audit log. Audit failures never block the audited
// operation; they are logged and dropped.
func (s *AdminService) record(ctx context.Context, actorID, targetID string, action model.AuditAction, detail, outcome string) {
	if s.audit == nil {
		return
	}
	entry := model.AuditEntry{
		ActorID:  actorID,
		TargetID: targetID,
		Action:   action,
		Detail:   detail,
		Outcome:  outcome,
		At:       s.now().UTC(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed", "action", action, "target_id", targetID, "error", err)
	}
}

// alertPartialFailure pages the operators about a half-applied operation.
// Delivery is best-effort; the error the caller sees already says how to
// reconcile.
func (s *AdminService) alertPartialFailure(ctx context.Context, actorID, targetID string, action model.AuditAction, cause error) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	s.notifier.NotifyPartialFailure(ctx, notify.OperatorAlert{
		Action:     string(action),
		ActorID:    actorID,
		TargetID:   targetID,
		Error:      cause.Error(),
		OccurredAt: s.now().UTC(),
	})
}

func (s *AdminService) publish(ctx context.Context, event domainauth.Event) {
	if s.stream == nil {
		return
	}
	if err := s.stream.Publish(ctx, event); err != nil {
		s.logger.Warn("publish auth event failed", "type", event.Type, "user_id", event.UserID, "error", err)
	}
}

func (s *AdminService) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}
