package model

import "time"

// AuditAction names an admin operation recorded in the audit log.
type AuditAction string

const (
	AuditActionSetRole     AuditAction = "set_role"
	AuditActionDisableUser AuditAction = "disable_user"
	AuditActionEnableUser  AuditAction = "enable_user"
	AuditActionDeleteUser  AuditAction = "delete_user"
)

// AuditEntry records one admin action against a target user. Outcome is
// "ok", "partial" (one of the two dependent writes failed), or "failed".
type AuditEntry struct {
	ID       string      `json:"id"`
	ActorID  string      `json:"actor_id"`
	TargetID string      `json:"target_id"`
	Action   AuditAction `json:"action"`
	Detail   string      `json:"detail,omitempty"`
	Outcome  string      `json:"outcome"`
	At       time.Time   `json:"at"`
}

// Audit outcomes.
const (
	AuditOutcomeOK      = "ok"
	AuditOutcomePartial = "partial"
	AuditOutcomeFailed  = "failed"
)
