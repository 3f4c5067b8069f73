package mongostore

// Package mongostore implements the role and profile store ports on MongoDB.
// Both collections are keyed by the directory's user id as _id, so reads and
// writes are single-document operations with no secondary indexes required.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/domain/model"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const rolesCollection = "user_roles"

// RoleStore persists role records in the user_roles collection.
type RoleStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ ports.RoleStore = (*RoleStore)(nil)

// NewRoleStore builds a RoleStore over the given database.
func NewRoleStore(db *mongo.Database) *RoleStore {
	return &RoleStore{coll: db.Collection(rolesCollection), now: time.Now}
}

// GetRole resolves the effective role for an id. Absence reads as the default
// role rather than an error, so a user whose record was never written (or was
// cleaned up) still gets ordinary access.
func (s *RoleStore) GetRole(ctx context.Context, id string) (domainauth.Role, error) {
	rec, err := s.GetRecord(ctx, id)
	if apperrors.IsNotFound(err) {
		return domainauth.RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	if !rec.Role.Valid() {
		// Unknown values written by older tooling degrade to the default role.
		return domainauth.RoleUser, nil
	}
	return rec.Role, nil
}

// GetRecord fetches the raw record for an id.
func (s *RoleStore) GetRecord(ctx context.Context, id string) (model.RoleRecord, error) {
	var rec model.RoleRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.RoleRecord{}, apperrors.NotFoundf("no role record for user %s", id)
	}
	if err != nil {
		return model.RoleRecord{}, mapMongoError(err, "fetch role record")
	}
	return rec, nil
}

// SetRole upserts the record unconditionally. Last write wins; two admins
// racing on the same target produce no conflict signal.
func (s *RoleStore) SetRole(ctx context.Context, id string, role domainauth.Role, updatedBy string) error {
	rec := model.RoleRecord{UserID: id, Role: role, UpdatedAt: s.now().UTC(), UpdatedBy: updatedBy}
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return mapMongoError(err, "write role record")
	}
	return nil
}

// ListAll returns every role record, ordered by user id for stable pagination.
func (s *RoleStore) ListAll(ctx context.Context) ([]model.RoleRecord, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapMongoError(err, "list role records")
	}
	defer cur.Close(ctx)

	var records []model.RoleRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, mapMongoError(err, "decode role records")
	}
	return records, nil
}

// Delete removes the record. Deleting an absent record succeeds so account
// deletion can be retried.
func (s *RoleStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return mapMongoError(err, "delete role record")
	}
	return nil
}

// mapMongoError translates driver failures into the application error taxonomy.
func mapMongoError(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, op+" timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, op+" canceled")
	case mongo.IsTimeout(err):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, op+" timed out")
	case mongo.IsNetworkError(err):
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "document store unreachable")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, op+" failed")
	}
}
