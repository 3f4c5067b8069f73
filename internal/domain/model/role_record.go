package model

import (
	"strings"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
)

// RoleRecord is the document mapping a user id to their application role.
// A record should exist for every non-deleted identity, but readers tolerate
// its absence and treat a missing record as role "user". Writes are
// unconditional last-write-wins; concurrent admins racing on the same target
// produce no conflict signal.
type RoleRecord struct {
	UserID    string          `bson:"_id"        json:"user_id"`
	Role      domainauth.Role `bson:"role"       json:"role"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
	UpdatedBy string          `bson:"updated_by" json:"updated_by,omitempty"`
}

// Validate checks the record before a write.
func (r *RoleRecord) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	if !r.Role.Valid() {
		return apperrors.ValidationField("role", "role must be one of user, admin, disabled")
	}
	return nil
}
