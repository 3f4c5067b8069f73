package ports

import (
	"context"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
)

// RoleStore persists role records keyed 1:1 by identity id.
type RoleStore interface {
	// GetRole resolves the effective role for an id. A missing record reads
	// as RoleUser; only infrastructure failures return an error.
	GetRole(ctx context.Context, id string) (domainauth.Role, error)

	// GetRecord fetches the raw record, returning a not-found error when absent.
	GetRecord(ctx context.Context, id string) (model.RoleRecord, error)

	// SetRole overwrites the record unconditionally (last write wins).
	SetRole(ctx context.Context, id string, role domainauth.Role, updatedBy string) error

	// ListAll returns every role record.
	ListAll(ctx context.Context) ([]model.RoleRecord, error)

	// Delete removes the record. Deleting an absent record succeeds.
	Delete(ctx context.Context, id string) error
}

// ProfileStore persists the free-form per-user profile documents.
type ProfileStore interface {
	Get(ctx context.Context, id string) (model.Profile, error)
	Upsert(ctx context.Context, profile model.Profile) error
	Delete(ctx context.Context, id string) error
}

// AuditLog records admin actions. Append failures must not block the
// operation being audited; callers log and continue.
type AuditLog interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// SessionStore persists and retrieves user sessions. Implementations keep a
// per-user index so the session mirror can find every live session for an
// identity when its auth state changes.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error

	// ListByUser returns the live sessions for a user id, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domainauth.Session, error)

	// DeleteByUser removes every session for a user id.
	DeleteByUser(ctx context.Context, userID string) error
}
