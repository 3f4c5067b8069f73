package service

import (
	"context"
	"testing"
	"time"

	"github.com/codelane/authdeck/internal/adapters/memstore"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	mocks "github.com/codelane/authdeck/internal/mocks"
	authmocks "github.com/codelane/authdeck/internal/mocks/auth"
	"github.com/codelane/authdeck/internal/observability/notify"
	"github.com/codelane/authdeck/internal/service/failurenotifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type adminFixture struct {
	service   *AdminService
	directory *mocks.MockAdminDirectory
	roles     *authmocks.MemoryRoleStore
	profiles  *authmocks.MemoryProfileStore
	sessions  *memstore.SessionStore
	audit     *authmocks.MemoryAuditLog
	stream    *memstore.AuthStateStream
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &adminFixture{
		directory: mocks.NewMockAdminDirectory(ctrl),
		roles:     authmocks.NewMemoryRoleStore(),
		profiles:  authmocks.NewMemoryProfileStore(),
		sessions:  memstore.NewSessionStore(),
		audit:     authmocks.NewMemoryAuditLog(),
		stream:    memstore.NewAuthStateStream(),
	}
	f.service = NewAdminService(AdminServiceOptions{
		Directory: f.directory,
		Roles:     f.roles,
		Profiles:  f.profiles,
		Sessions:  f.sessions,
		Audit:     f.audit,
		Stream:    f.stream,
	})

	// Mutations re-read the caller's role record, so the fixture's actor
	// needs one on record, not just a role claim in the session.
	require.NoError(t, f.roles.SetRole(context.Background(), "admin-1", domainauth.RoleAdmin, "boot"))
	return f
}

func adminSession() domainauth.Session {
	return domainauth.Session{ID: "sess-admin", UserID: "admin-1", Email: "admin@example.com", Role: domainauth.RoleAdmin}
}

func TestListUsers_MergesRoles(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListUsers(gomock.Any()).Return([]domainauth.Identity{
		{ID: "u-1", Email: "alice@example.com", EmailVerified: true},
		{ID: "u-2", Email: "bob@example.com"},
		{ID: "u-3", Email: "carol@example.com"},
	}, nil)
	require.NoError(t, f.roles.SetRole(ctx, "u-2", domainauth.RoleAdmin, "boot"))
	require.NoError(t, f.roles.SetRole(ctx, "u-3", domainauth.RoleDisabled, "admin-1"))

	rows, err := f.service.ListUsers(ctx, adminSession(), "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Sorted by email; missing role records read as the default user role.
	assert.Equal(t, "alice@example.com", rows[0].Email)
	assert.Equal(t, domainauth.RoleUser, rows[0].Role)
	assert.Equal(t, domainauth.RoleAdmin, rows[1].Role)
	assert.Equal(t, domainauth.RoleDisabled, rows[2].Role)
}

func TestListUsers_JMESPathFilter(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListUsers(gomock.Any()).Return([]domainauth.Identity{
		{ID: "u-1", Email: "alice@example.com", EmailVerified: true},
		{ID: "u-2", Email: "bob@example.com"},
	}, nil).AnyTimes()
	require.NoError(t, f.roles.SetRole(ctx, "u-2", domainauth.RoleDisabled, "admin-1"))

	rows, err := f.service.ListUsers(ctx, adminSession(), "[?role=='disabled']")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u-2", rows[0].ID)

	rows, err = f.service.ListUsers(ctx, adminSession(), "[?email_verified]")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u-1", rows[0].ID)
}

func TestListUsers_InvalidFilter(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	f.directory.EXPECT().ListUsers(gomock.Any()).Return(nil, nil)

	_, err := f.service.ListUsers(context.Background(), adminSession(), "[?role==")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSetRole_SelfChangeRejected(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	err := f.service.SetRole(context.Background(), adminSession(), "admin-1", domainauth.RoleUser)
	assert.True(t, apperrors.IsValidation(err))

	_, ok := f.audit.Last()
	assert.False(t, ok, "rejected request must not be audited")
}

func TestMutations_DemotedActorRejected(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	// The session still claims admin, but the role store says otherwise.
	require.NoError(t, f.roles.SetRole(ctx, "admin-1", domainauth.RoleUser, "admin-2"))

	// No directory expectations: nothing downstream may be touched.
	assert.True(t, apperrors.IsForbidden(f.service.SetRole(ctx, adminSession(), "u-1", domainauth.RoleAdmin)))
	assert.True(t, apperrors.IsForbidden(f.service.DisableUser(ctx, adminSession(), "u-1")))
	assert.True(t, apperrors.IsForbidden(f.service.EnableUser(ctx, adminSession(), "u-1")))
	assert.True(t, apperrors.IsForbidden(f.service.DeleteUser(ctx, adminSession(), "u-1")))

	_, err := f.service.ListUsers(ctx, adminSession(), "")
	assert.True(t, apperrors.IsForbidden(err))

	role, err := f.roles.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)

	_, ok := f.audit.Last()
	assert.False(t, ok, "rejected request must not be audited")
}

type staticTokenLookup struct {
	identity domainauth.Identity
	err      error
}

func (s staticTokenLookup) Lookup(ctx context.Context, token string) (domainauth.Identity, error) {
	return s.identity, s.err
}

func TestMutations_RevokedTokenRejected(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.service.tokens = staticTokenLookup{err: apperrors.Unauthorized("invalid or expired token")}

	err := f.service.DisableUser(context.Background(), adminSession(), "u-1")
	assert.True(t, apperrors.IsUnauthorized(err))

	_, ok := f.audit.Last()
	assert.False(t, ok, "rejected request must not be audited")
}

func TestMutations_DisabledActorIdentityRejected(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.service.tokens = staticTokenLookup{identity: domainauth.Identity{ID: "admin-1", Disabled: true}}

	err := f.service.SetRole(context.Background(), adminSession(), "u-1", domainauth.RoleAdmin)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestMutations_RoleStoreDownBlocksActorCheck(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.roles.Err = apperrors.Unavailable("role store is down")

	err := f.service.DisableUser(context.Background(), adminSession(), "u-1")
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestSetRole_WritesAndAudits(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetRole(ctx, adminSession(), "u-1", domainauth.RoleAdmin))

	role, err := f.roles.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditActionSetRole, entry.Action)
	assert.Equal(t, model.AuditOutcomeOK, entry.Outcome)
	assert.Equal(t, "admin-1", entry.ActorID)
	assert.Equal(t, "u-1", entry.TargetID)
}

func TestDisableUser_RoleWrittenBeforeDirectory(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", true).
		DoAndReturn(func(ctx context.Context, id string, disabled bool) error {
			// By the time the directory is flagged, the role gate is already up.
			role, err := f.roles.GetRole(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domainauth.RoleDisabled, role)
			return nil
		})

	require.NoError(t, f.service.DisableUser(ctx, adminSession(), "u-1"))

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomeOK, entry.Outcome)
}

func TestDisableUser_DirectoryFailureIsPartial(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", true).
		Return(apperrors.Unavailable("directory is down"))

	err := f.service.DisableUser(ctx, adminSession(), "u-1")
	require.True(t, apperrors.IsPartialFailure(err))

	// The app-level gate is in place even though the directory write failed.
	role, roleErr := f.roles.GetRole(ctx, "u-1")
	require.NoError(t, roleErr)
	assert.Equal(t, domainauth.RoleDisabled, role)

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomePartial, entry.Outcome)
}

func TestDisableUser_PartialFailureAlertsOperators(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	var alerts []notify.OperatorAlert
	f.service.notifier = failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(ctx context.Context, alert notify.OperatorAlert) error {
				alerts = append(alerts, alert)
				return nil
			}),
		}},
	})

	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", true).
		Return(apperrors.Unavailable("directory is down"))

	err := f.service.DisableUser(ctx, adminSession(), "u-1")
	require.True(t, apperrors.IsPartialFailure(err))

	require.Len(t, alerts, 1)
	assert.Equal(t, string(model.AuditActionDisableUser), alerts[0].Action)
	assert.Equal(t, "admin-1", alerts[0].ActorID)
	assert.Equal(t, "u-1", alerts[0].TargetID)
	assert.Contains(t, alerts[0].Error, "directory is down")
}

func TestDisableUser_RoleFailureLeavesDirectoryUntouched(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.roles.SetRoleErr = apperrors.Unavailable("role store is down")

	// No SetDisabled expectation: the directory must not be called.
	err := f.service.DisableUser(context.Background(), adminSession(), "u-1")
	require.Error(t, err)
	assert.False(t, apperrors.IsPartialFailure(err))

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomeFailed, entry.Outcome)
}

func TestDisableUser_DropsLiveSessions(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sessions.Save(ctx, domainauth.Session{
		ID: "sess-1", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour),
	}))
	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", true).Return(nil)

	require.NoError(t, f.service.DisableUser(ctx, adminSession(), "u-1"))

	_, err := f.sessions.Get(ctx, "sess-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEnableUser_DirectoryBeforeRole(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleDisabled, "admin-1"))
	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", false).
		DoAndReturn(func(ctx context.Context, id string, disabled bool) error {
			// The role record must still read disabled when the directory is
			// re-enabled; the reverse would briefly let a disabled role through.
			role, err := f.roles.GetRole(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domainauth.RoleDisabled, role)
			return nil
		})

	require.NoError(t, f.service.EnableUser(ctx, adminSession(), "u-1"))

	role, err := f.roles.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)
}

func TestEnableUser_RoleFailureIsPartial(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.roles.SetRoleErr = apperrors.Unavailable("role store is down")

	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", false).Return(nil)

	err := f.service.EnableUser(context.Background(), adminSession(), "u-1")
	require.True(t, apperrors.IsPartialFailure(err))

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomePartial, entry.Outcome)
}

func TestDeleteUser_CleansUpAppData(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleAdmin, "boot"))
	require.NoError(t, f.profiles.Upsert(ctx, model.Profile{UserID: "u-1", Bio: "hello"}))
	require.NoError(t, f.sessions.Save(ctx, domainauth.Session{
		ID: "sess-1", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour),
	}))
	f.directory.EXPECT().DeleteUser(gomock.Any(), "u-1").Return(nil)

	require.NoError(t, f.service.DeleteUser(ctx, adminSession(), "u-1"))

	_, err := f.roles.GetRecord(ctx, "u-1")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.profiles.Get(ctx, "u-1")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.sessions.Get(ctx, "sess-1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteUser_SelfDeleteRejected(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	err := f.service.DeleteUser(context.Background(), adminSession(), "admin-1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteUser_RecordRemovedBeforeDirectory(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleUser, "boot"))

	f.directory.EXPECT().DeleteUser(gomock.Any(), "u-1").
		DoAndReturn(func(ctx context.Context, id string) error {
			// By the time the privileged call runs, the record is gone.
			_, err := f.roles.GetRecord(ctx, id)
			assert.True(t, apperrors.IsNotFound(err))
			return nil
		})

	require.NoError(t, f.service.DeleteUser(ctx, adminSession(), "u-1"))
}

func TestDeleteUser_CleanupFailureStopsBeforeDirectory(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	f.roles.DeleteErr = apperrors.Unavailable("role store is down")

	// No directory expectation: nothing was deleted yet, so the privileged
	// call must not happen and the failure is total, not partial.
	err := f.service.DeleteUser(context.Background(), adminSession(), "u-1")
	require.Error(t, err)
	assert.False(t, apperrors.IsPartialFailure(err))

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomeFailed, entry.Outcome)
}

func TestDeleteUser_DirectoryFailureIsPartial(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	f.directory.EXPECT().DeleteUser(gomock.Any(), "u-1").
		Return(apperrors.Unavailable("directory is down"))

	err := f.service.DeleteUser(context.Background(), adminSession(), "u-1")
	require.True(t, apperrors.IsPartialFailure(err))

	entry, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, model.AuditOutcomePartial, entry.Outcome)
}

func TestDisableUser_PublishesDisabledEvent(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	events, unsub, err := f.stream.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub()

	f.directory.EXPECT().SetDisabled(gomock.Any(), "u-1", true).Return(nil)
	require.NoError(t, f.service.DisableUser(ctx, adminSession(), "u-1"))

	select {
	case got := <-events:
		assert.Equal(t, domainauth.EventDisabled, got.Type)
		assert.Equal(t, "u-1", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("no disabled event published")
	}
}

func TestGetUser_MergesRoleRecord(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().GetUser(gomock.Any(), "u-1").Return(domainauth.Identity{
		ID: "u-1", Email: "alice@example.com",
	}, nil)
	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleAdmin, "admin-1"))

	row, err := f.service.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, row.Role)
	assert.Equal(t, "admin-1", row.RoleUpdatedBy)
}

func TestAuditTrail_NewestFirst(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetRole(ctx, adminSession(), "u-1", domainauth.RoleAdmin))
	require.NoError(t, f.service.SetRole(ctx, adminSession(), "u-2", domainauth.RoleDisabled))

	entries, err := f.service.AuditTrail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u-2", entries[0].TargetID)
	assert.Equal(t, "u-1", entries[1].TargetID)
}
