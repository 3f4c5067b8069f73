package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/redis/go-redis/v9"
)

const authStateChannel = "auth_state"

// AuthStateStream fans auth-state change events out over a Redis pub/sub
// channel so every instance's session mirror observes changes made on any
// instance. Delivery is at-most-once; subscribers treat events as hints and
// re-read authoritative state on receipt.
type AuthStateStream struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

var _ ports.AuthStateStream = (*AuthStateStream)(nil)

// NewAuthStateStream creates a stream over the given Redis client.
func NewAuthStateStream(client redis.UniversalClient, logger *slog.Logger) *AuthStateStream {
	return &AuthStateStream{client: client, channel: authStateChannel, logger: logger}
}

func (s *AuthStateStream) Publish(ctx context.Context, event domainauth.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal auth event")
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "publish auth event")
	}
	return nil
}

// Subscribe opens a pub/sub subscription and pumps decoded events into the
// returned channel until unsubscribe is called or ctx ends.
func (s *AuthStateStream) Subscribe(ctx context.Context) (<-chan domainauth.Event, func(), error) {
	sub := s.client.Subscribe(ctx, s.channel)

	// Force the subscription handshake so failures surface here, not later.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "subscribe auth events")
	}

	out := make(chan domainauth.Event, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domainauth.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("dropping malformed auth event", "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		_ = sub.Close()
	}
	return out, unsubscribe, nil
}
