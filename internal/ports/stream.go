package ports

import (
	"context"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
)

// AuthStateStream is the push-based auth-state change feed the session
// mirror observes. Subscribe returns a receive channel and an unsubscribe
// function; the channel is closed after unsubscribe or when ctx ends.
type AuthStateStream interface {
	Publish(ctx context.Context, event domainauth.Event) error
	Subscribe(ctx context.Context) (<-chan domainauth.Event, func(), error)
}
