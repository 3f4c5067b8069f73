package redis

// Package redis provides the Redis-backed session store and auth-state
// stream. Sessions expire via Redis TTLs derived from the session ExpiresAt;
// a per-user set indexes live session ids so the session mirror can reach
// every session for an identity.

import (
	"context"
	"encoding/json"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix   = "session:"
	userIndexPrefix = "user_sessions:"
)

// SessionStore is a Redis-based session store for production use.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: sessionPrefix}
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return apperrors.Validation("session ID cannot be empty")
	}
	if sess.UserID == "" {
		return apperrors.Validation("session user ID cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal session")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return apperrors.Validation("session is already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+sess.ID, data, ttl)
	pipe.SAdd(ctx, s.userIndexKey(sess.UserID), sess.ID)
	// The index outlives its members by a little; lookups skip dangling ids.
	pipe.Expire(ctx, s.userIndexKey(sess.UserID), ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "save session")
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}

	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err == redis.Nil {
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}
	if err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "fetch session")
	}

	var sess domainauth.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "unmarshal session")
	}

	// Redis TTL should have evicted it already; double-check and clean up.
	if time.Now().After(sess.ExpiresAt) {
		if err := s.Delete(ctx, id); err != nil {
			return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "cleanup expired session")
		}
		return domainauth.Session{}, apperrors.NotFound("session not found")
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	// Fetch first so the user index entry can be dropped too.
	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "fetch session for delete")
	}

	var sess domainauth.Session
	userID := ""
	if json.Unmarshal([]byte(data), &sess) == nil {
		userID = sess.UserID
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.prefix+id)
	if userID != "" {
		pipe.SRem(ctx, s.userIndexKey(userID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "delete session")
	}
	return nil
}

// ListByUser returns every live session for a user, oldest expiry first.
// Dangling index entries (TTL-evicted sessions) are pruned as a side effect.
func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]domainauth.Session, error) {
	if userID == "" {
		return nil, nil
	}

	ids, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err == redis.Nil || len(ids) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "list user sessions")
	}

	sessions := make([]domainauth.Session, 0, len(ids))
	var dangling []any
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if apperrors.IsNotFound(err) {
			dangling = append(dangling, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if len(dangling) > 0 {
		_ = s.client.SRem(ctx, s.userIndexKey(userID), dangling...).Err()
	}

	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].ExpiresAt.Before(sessions[j-1].ExpiresAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
	return sessions, nil
}

// DeleteByUser removes every session for a user id.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	ids, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "list user sessions")
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.prefix+id)
	}
	pipe.Del(ctx, s.userIndexKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "delete user sessions")
	}
	return nil
}

func (s *SessionStore) userIndexKey(userID string) string {
	return userIndexPrefix + userID
}
