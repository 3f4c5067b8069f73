package pgaudit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*Repo, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })
	return NewRepo(db), db
}

func TestAppend_AndRecent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	entries := []model.AuditEntry{
		{ActorID: "admin-1", TargetID: "user-1", Action: model.AuditActionSetRole, Detail: "role=admin", Outcome: model.AuditOutcomeOK},
		{ActorID: "admin-1", TargetID: "user-2", Action: model.AuditActionDisableUser, Outcome: model.AuditOutcomePartial, Detail: "directory disable failed"},
		{ActorID: "admin-2", TargetID: "user-1", Action: model.AuditActionDeleteUser, Outcome: model.AuditOutcomeOK},
	}
	for _, e := range entries {
		e.At = time.Now().UTC()
		require.NoError(t, repo.Append(ctx, e))
		time.Sleep(5 * time.Millisecond)
	}

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	// Most recent first.
	assert.Equal(t, model.AuditActionDeleteUser, recent[0].Action)
	assert.Equal(t, model.AuditActionSetRole, recent[2].Action)
	assert.NotEmpty(t, recent[0].ID)
	assert.False(t, recent[0].At.IsZero())
}

func TestAppend_Validation(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	err := repo.Append(ctx, model.AuditEntry{TargetID: "user-1", Action: model.AuditActionSetRole})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "actor_id", apperrors.GetField(err))

	err = repo.Append(ctx, model.AuditEntry{ActorID: "admin-1", Action: model.AuditActionSetRole})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "target_id", apperrors.GetField(err))
}

func TestRecent_LimitAndDefault(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, model.AuditEntry{
			ActorID:  "admin-1",
			TargetID: "user-1",
			Action:   model.AuditActionSetRole,
			Outcome:  model.AuditOutcomeOK,
		}))
	}

	limited, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestForTarget(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, model.AuditEntry{
		ActorID: "admin-1", TargetID: "user-1", Action: model.AuditActionDisableUser, Outcome: model.AuditOutcomeOK,
	}))
	require.NoError(t, repo.Append(ctx, model.AuditEntry{
		ActorID: "admin-1", TargetID: "user-2", Action: model.AuditActionEnableUser, Outcome: model.AuditOutcomeOK,
	}))

	got, err := repo.ForTarget(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.AuditActionDisableUser, got[0].Action)
}
