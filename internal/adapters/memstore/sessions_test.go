package memstore

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(id, userID string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:        id,
		UserID:    userID,
		Email:     "user@example.com",
		Role:      domainauth.RoleUser,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	t.Parallel()
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session("s1", "u1", time.Hour)))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionStore_ExpiredSessionEvicted(t *testing.T) {
	t.Parallel()
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session("s1", "u1", 10*time.Millisecond)))
	time.Sleep(20 * time.Millisecond)

	_, err := store.Get(ctx, "s1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSessionStore_ByUser(t *testing.T) {
	t.Parallel()
	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session("s1", "u1", 2*time.Hour)))
	require.NoError(t, store.Save(ctx, session("s2", "u1", time.Hour)))
	require.NoError(t, store.Save(ctx, session("s3", "u2", time.Hour)))

	got, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)

	require.NoError(t, store.DeleteByUser(ctx, "u1"))
	got, err = store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Get(ctx, "s3")
	assert.NoError(t, err)
}

func TestAuthStateStream_Fanout(t *testing.T) {
	t.Parallel()
	stream := NewAuthStateStream()
	ctx := context.Background()

	ch1, unsub1, err := stream.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub1()
	ch2, unsub2, err := stream.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub2()

	event := domainauth.Event{Type: domainauth.EventSignedOut, UserID: "u1"}
	require.NoError(t, stream.Publish(ctx, event))

	assert.Equal(t, event, <-ch1)
	assert.Equal(t, event, <-ch2)
}

func TestAuthStateStream_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	stream := NewAuthStateStream()

	ch, unsub, err := stream.Subscribe(context.Background())
	require.NoError(t, err)
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	assert.NoError(t, stream.Publish(context.Background(), domainauth.Event{Type: domainauth.EventSignedIn}))
}

func TestAuthStateStream_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()
	stream := NewAuthStateStream()

	ctx, cancel := context.WithCancel(context.Background())
	ch, unsub, err := stream.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub()

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after context cancel")
	}
}
