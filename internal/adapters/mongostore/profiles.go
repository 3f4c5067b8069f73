package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profilesCollection = "profiles"

// ProfileStore persists profile documents in the profiles collection.
type ProfileStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ ports.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore builds a ProfileStore over the given database.
func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{coll: db.Collection(profilesCollection), now: time.Now}
}

// Get fetches a profile by user id.
func (s *ProfileStore) Get(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Profile{}, apperrors.NotFoundf("no profile for user %s", id)
	}
	if err != nil {
		return model.Profile{}, mapMongoError(err, "fetch profile")
	}
	return p, nil
}

// Upsert replaces the whole profile document, creating it on first save.
func (s *ProfileStore) Upsert(ctx context.Context, profile model.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	profile.UpdatedAt = s.now().UTC()

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": profile.UserID}, profile, options.Replace().SetUpsert(true))
	if err != nil {
		return mapMongoError(err, "write profile")
	}
	return nil
}

// Delete removes the profile. Absence is not an error.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return mapMongoError(err, "delete profile")
	}
	return nil
}
