package service

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/ports"
)

// SessionMirror keeps live sessions consistent with auth-state changes made
// elsewhere: another instance, the admin console, or the user's other
// sessions. It subscribes to the auth-state stream; disable and delete
// events drop the user's sessions, update events re-read the role and
// rewrite them.
//
// Role re-reads run concurrently. Each event bumps a per-user sequence
// number taken before the fetch; a fetch that finishes after a newer event
// arrived is stale and its result is discarded, so an old role can never
// overwrite a newer one.
type SessionMirror struct {
	sessions ports.SessionStore
	roles    ports.RoleStore
	stream   ports.AuthStateStream
	logger   *slog.Logger

	mu  sync.Mutex
	seq map[string]uint64
	wg  sync.WaitGroup
}

// NewSessionMirror constructs a SessionMirror.
func NewSessionMirror(sessions ports.SessionStore, roles ports.RoleStore, stream ports.AuthStateStream, logger *slog.Logger) *SessionMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionMirror{
		sessions: sessions,
		roles:    roles,
		stream:   stream,
		logger:   logger,
		seq:      make(map[string]uint64),
	}
}

// Run subscribes to the stream and applies events until ctx ends.
func (m *SessionMirror) Run(ctx context.Context) error {
	events, unsubscribe, err := m.stream.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				m.wg.Wait()
				return nil
			}
			m.apply(ctx, event)
		}
	}
}

func (m *SessionMirror) apply(ctx context.Context, event domainauth.Event) {
	switch event.Type {
	case domainauth.EventDisabled, domainauth.EventDeleted:
		if err := m.sessions.DeleteByUser(ctx, event.UserID); err != nil {
			m.logger.Warn("mirror: drop sessions failed", "user_id", event.UserID, "error", err)
		}
	case domainauth.EventUpdated:
		seq := m.bump(event.UserID)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.refreshRole(ctx, event.UserID, seq)
		}()
	case domainauth.EventSignedIn, domainauth.EventSignedOut:
		// Session lifecycle events carry no state to mirror.
	}
}

// refreshRole re-reads the authoritative role and rewrites the user's live
// sessions, unless a newer event superseded this fetch while it ran.
func (m *SessionMirror) refreshRole(ctx context.Context, userID string, seq uint64) {
	role, err := m.roles.GetRole(ctx, userID)
	if err != nil {
		m.logger.Warn("mirror: role fetch failed", "user_id", userID, "error", err)
		return
	}
	if !m.isLatest(userID, seq) {
		m.logger.Debug("mirror: discarding stale role fetch", "user_id", userID, "seq", seq)
		return
	}

	if role == domainauth.RoleDisabled {
		if err := m.sessions.DeleteByUser(ctx, userID); err != nil {
			m.logger.Warn("mirror: drop sessions failed", "user_id", userID, "error", err)
		}
		return
	}

	sessions, err := m.sessions.ListByUser(ctx, userID)
	if err != nil {
		m.logger.Warn("mirror: list sessions failed", "user_id", userID, "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.Role == role {
			continue
		}
		// Re-check freshness per write; a newer fetch may have landed mid-loop.
		if !m.isLatest(userID, seq) {
			return
		}
		sess.Role = role
		if err := m.sessions.Save(ctx, sess); err != nil {
			m.logger.Warn("mirror: session update failed", "session_id", sess.ID, "error", err)
		}
	}
}

func (m *SessionMirror) bump(userID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[userID]++
	return m.seq[userID]
}

func (m *SessionMirror) isLatest(userID string, seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq[userID] == seq
}
