package memory

import (
	"context"
	"sync"
	"time"

	audit "eeia/pkg/platform/audit"
)

const defaultCapacity = 10000

// InMemoryStore keeps the most recent audit events in process. It serves as
// both a synchronous Publisher and a Sink for the buffered publisher.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	capacity int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{capacity: defaultCapacity}
}

// NewInMemoryStoreWithCapacity bounds the retained history.
func NewInMemoryStoreWithCapacity(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{capacity: capacity}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// Emit normalizes and stores one event.
func (s *InMemoryStore) Emit(_ context.Context, event audit.Event) error {
	s.append(event.Normalize(time.Now()))
	return nil
}

// WriteBatch stores already-normalized events.
func (s *InMemoryStore) WriteBatch(_ context.Context, events []audit.Event) error {
	s.append(events...)
	return nil
}

func (s *InMemoryStore) append(events ...audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	if over := len(s.events) - s.capacity; over > 0 {
		s.events = append([]audit.Event(nil), s.events[over:]...)
	}
}

// ListBySubject returns events for one subject, oldest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every retained event, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListRecent returns the most recent N events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]audit.Event{}, s.events[start:]...), nil
}
