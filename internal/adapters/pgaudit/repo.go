package pgaudit

// Package pgaudit persists the admin audit log in Postgres. Entries are
// append-only; there is no update or delete path.

import (
	"context"
	"database/sql"
	"time"

	"github.com/codelane/authdeck/internal/data/pgxutil"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultRecentLimit = 50

// Repo provides database operations for the audit log.
type Repo struct {
	DB  *sql.DB
	now func() time.Time
}

var _ ports.AuditLog = (*Repo)(nil)

// NewRepo creates a new audit log repo with the given database connection.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db, now: time.Now}
}

const auditColumns = `id, actor_id, target_id, action, detail, outcome, at`

// Append records one admin action. Missing id and timestamp are filled in.
func (r *Repo) Append(ctx context.Context, entry model.AuditEntry) error {
	if entry.ActorID == "" {
		return apperrors.ValidationField("actor_id", "actor id is required")
	}
	if entry.TargetID == "" {
		return apperrors.ValidationField("target_id", "target id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = r.now().UTC()
	}
	if entry.Outcome == "" {
		entry.Outcome = model.AuditOutcomeOK
	}

	query := `
		INSERT INTO audit_log (id, actor_id, target_id, action, detail, outcome, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, query,
			entry.ID, entry.ActorID, entry.TargetID, string(entry.Action), entry.Detail, entry.Outcome, entry.At)
		return err
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// auditRow maps the audit_log columns for pgx row collection.
type auditRow struct {
	ID       string    `db:"id"`
	ActorID  string    `db:"actor_id"`
	TargetID string    `db:"target_id"`
	Action   string    `db:"action"`
	Detail   string    `db:"detail"`
	Outcome  string    `db:"outcome"`
	At       time.Time `db:"at"`
}

func (row auditRow) entry() model.AuditEntry {
	return model.AuditEntry{
		ID:       row.ID,
		ActorID:  row.ActorID,
		TargetID: row.TargetID,
		Action:   model.AuditAction(row.Action),
		Detail:   row.Detail,
		Outcome:  row.Outcome,
		At:       row.At,
	}
}

// Recent returns the newest entries, most recent first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log ORDER BY at DESC, id DESC LIMIT $1`

	var entries []model.AuditEntry
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
		if err != nil {
			return err
		}
		entries = make([]model.AuditEntry, 0, len(collected))
		for _, row := range collected {
			entries = append(entries, row.entry())
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return entries, nil
}

// ForTarget returns the newest entries for one target user, most recent first.
func (r *Repo) ForTarget(ctx context.Context, targetID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE target_id = $1 ORDER BY at DESC, id DESC LIMIT $2`

	var entries []model.AuditEntry
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, targetID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
		if err != nil {
			return err
		}
		entries = make([]model.AuditEntry, 0, len(collected))
		for _, row := range collected {
			entries = append(entries, row.entry())
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return entries, nil
}
