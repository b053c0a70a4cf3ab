package audit

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// InMemoryStore keeps events per identity.
type InMemoryStore struct {
	events *xsync.MapOf[string, []Event]
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: xsync.NewMapOf[string, []Event]()}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.events.Compute(event.IdentityID, func(old []Event, _ bool) ([]Event, bool) {
		return append(old, event), false
	})
	return nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID string) ([]Event, error) {
	events, _ := s.events.Load(identityID)
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}
