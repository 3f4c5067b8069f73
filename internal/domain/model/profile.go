package model

import (
	"strings"
	"time"

	apperrors "github.com/codelane/authdeck/internal/errors"
)

// Profile is the free-form per-user document edited on the profile page.
// It shares the identity's id as its key but has no other relationship to
// the role record; only the owning user may mutate it.
type Profile struct {
	UserID       string    `bson:"_id"                     json:"user_id"`
	Bio          string    `bson:"bio,omitempty"           json:"bio,omitempty"`
	Interests    []string  `bson:"interests,omitempty"     json:"interests,omitempty"`
	Gender       string    `bson:"gender,omitempty"        json:"gender,omitempty"`
	Birthdate    string    `bson:"birthdate,omitempty"     json:"birthdate,omitempty"`
	Location     string    `bson:"location,omitempty"      json:"location,omitempty"`
	Language     string    `bson:"language,omitempty"      json:"language,omitempty"`
	PhotoFolder  string    `bson:"photo_folder,omitempty"  json:"photo_folder,omitempty"`
	PrimaryPhoto string    `bson:"primary_photo,omitempty" json:"primary_photo,omitempty"`
	UpdatedAt    time.Time `bson:"updated_at"              json:"updated_at"`
}

const maxBioLength = 2000

// Validate checks the profile before a write.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	if len(p.Bio) > maxBioLength {
		return apperrors.ValidationField("bio", "bio is too long")
	}
	if p.Birthdate != "" {
		if _, err := time.Parse("2006-01-02", p.Birthdate); err != nil {
			return apperrors.ValidationField("birthdate", "birthdate must be YYYY-MM-DD")
		}
	}
	return nil
}
