package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codelane/authdeck/internal/adapters/memstore"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	mocks "github.com/codelane/authdeck/internal/mocks/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mirrorFixture struct {
	mirror   *SessionMirror
	sessions *memstore.SessionStore
	roles    *mocks.MemoryRoleStore
	stream   *signalingStream
}

// signalingStream wraps the in-memory stream and signals once a subscriber
// attaches, so tests can publish only after the mirror is listening (the
// stream drops events that have no subscribers).
type signalingStream struct {
	*memstore.AuthStateStream
	subscribed chan struct{}
	once       sync.Once
}

func (s *signalingStream) Subscribe(ctx context.Context) (<-chan domainauth.Event, func(), error) {
	defer s.once.Do(func() { close(s.subscribed) })
	return s.AuthStateStream.Subscribe(ctx)
}

func newMirrorFixture(t *testing.T) *mirrorFixture {
	t.Helper()
	f := &mirrorFixture{
		sessions: memstore.NewSessionStore(),
		roles:    mocks.NewMemoryRoleStore(),
		stream: &signalingStream{
			AuthStateStream: memstore.NewAuthStateStream(),
			subscribed:      make(chan struct{}),
		},
	}
	f.mirror = NewSessionMirror(f.sessions, f.roles, f.stream, nil)
	return f
}

// waitSubscribed blocks until the mirror's Run has subscribed to the stream.
func (f *mirrorFixture) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case <-f.stream.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not subscribe in time")
	}
}

func (f *mirrorFixture) saveSession(t *testing.T, id, userID string, role domainauth.Role) {
	t.Helper()
	require.NoError(t, f.sessions.Save(context.Background(), domainauth.Session{
		ID: id, UserID: userID, Role: role, ExpiresAt: time.Now().Add(time.Hour),
	}))
}

// waitFor polls until the condition holds or the deadline passes. The mirror
// applies events asynchronously, so assertions poll rather than sleep.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMirror_DisabledEventDropsSessions(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleUser)
	f.saveSession(t, "sess-2", "u-1", domainauth.RoleUser)
	f.saveSession(t, "sess-3", "u-2", domainauth.RoleUser)

	go func() { _ = f.mirror.Run(ctx) }()
	f.waitSubscribed(t)

	require.NoError(t, f.stream.Publish(ctx, domainauth.Event{
		Type: domainauth.EventDisabled, UserID: "u-1", At: time.Now(),
	}))

	waitFor(t, func() bool {
		_, err := f.sessions.Get(ctx, "sess-1")
		return apperrors.IsNotFound(err)
	})
	_, err := f.sessions.Get(ctx, "sess-2")
	assert.True(t, apperrors.IsNotFound(err))

	// Other users are untouched.
	_, err = f.sessions.Get(ctx, "sess-3")
	assert.NoError(t, err)
}

func TestMirror_UpdatedEventRewritesRole(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleUser)
	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleAdmin, "admin-1"))

	go func() { _ = f.mirror.Run(ctx) }()
	f.waitSubscribed(t)

	require.NoError(t, f.stream.Publish(ctx, domainauth.Event{
		Type: domainauth.EventUpdated, UserID: "u-1", At: time.Now(),
	}))

	waitFor(t, func() bool {
		sess, err := f.sessions.Get(ctx, "sess-1")
		return err == nil && sess.Role == domainauth.RoleAdmin
	})
}

func TestMirror_UpdatedEventToDisabledDropsSessions(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleUser)
	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleDisabled, "admin-1"))

	go func() { _ = f.mirror.Run(ctx) }()
	f.waitSubscribed(t)

	require.NoError(t, f.stream.Publish(ctx, domainauth.Event{
		Type: domainauth.EventUpdated, UserID: "u-1", At: time.Now(),
	}))

	waitFor(t, func() bool {
		_, err := f.sessions.Get(ctx, "sess-1")
		return apperrors.IsNotFound(err)
	})
}

func TestMirror_StaleRoleFetchDiscarded(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx := context.Background()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleAdmin)
	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleUser, "admin-1"))

	// A fetch started under seq 1 finishes after a second event bumped the
	// sequence to 2. Its result must be discarded.
	staleSeq := f.mirror.bump("u-1")
	f.mirror.bump("u-1")

	f.mirror.refreshRole(ctx, "u-1", staleSeq)

	sess, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, sess.Role, "stale fetch must not rewrite the session")
}

func TestMirror_LatestRoleFetchApplies(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx := context.Background()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleAdmin)
	require.NoError(t, f.roles.SetRole(ctx, "u-1", domainauth.RoleUser, "admin-1"))

	seq := f.mirror.bump("u-1")
	f.mirror.refreshRole(ctx, "u-1", seq)

	sess, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
}

func TestMirror_SignedInEventIsIgnored(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx := context.Background()

	f.saveSession(t, "sess-1", "u-1", domainauth.RoleUser)

	f.mirror.apply(ctx, domainauth.Event{Type: domainauth.EventSignedIn, UserID: "u-1", At: time.Now()})

	sess, err := f.sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
}

func TestMirror_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	f := newMirrorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.mirror.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop on cancel")
	}
}
