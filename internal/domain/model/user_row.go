package model

import (
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
)

// UserRow is one row of the admin console's user table: directory identity
// merged with the role record. RoleUpdatedAt/RoleUpdatedBy are zero-valued
// when no role record exists for the identity.
type UserRow struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	EmailVerified bool            `json:"email_verified"`
	Disabled      bool            `json:"disabled"`
	Role          domainauth.Role `json:"role"`
	RoleUpdatedAt time.Time       `json:"role_updated_at,omitempty"`
	RoleUpdatedBy string          `json:"role_updated_by,omitempty"`
}
