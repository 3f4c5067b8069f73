package memstore

import (
	"context"
	"sync"

	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/ports"
)

// AuthStateStream is an in-process fanout of auth-state events. Publish
// delivers to every live subscriber; a subscriber that cannot keep up drops
// events rather than blocking the publisher.
type AuthStateStream struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domainauth.Event
}

var _ ports.AuthStateStream = (*AuthStateStream)(nil)

// NewAuthStateStream creates an empty in-process stream.
func NewAuthStateStream() *AuthStateStream {
	return &AuthStateStream{subs: make(map[int]chan domainauth.Event)}
}

func (s *AuthStateStream) Publish(_ context.Context, event domainauth.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (s *AuthStateStream) Subscribe(ctx context.Context) (<-chan domainauth.Event, func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan domainauth.Event, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	return ch, func() { stop(); unsubscribe() }, nil
}
