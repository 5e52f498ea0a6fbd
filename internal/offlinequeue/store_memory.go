package offlinequeue

import (
	"context"
	"slices"
	"sync"

	"eeia/internal/domain"
)

// MemoryStore keeps the queue in process memory. It is not durable and is
// meant for development and tests; use the Postgres, Redis or JetStream stores
// in production.
type MemoryStore struct {
	mu      sync.Mutex
	seq     int64
	entries []Entry
}

// NewMemoryStore creates an empty in-memory queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Enqueue(_ context.Context, pkt domain.Packet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, Entry{ID: s.seq, Packet: pkt})
	return s.seq, nil
}

func (s *MemoryStore) DequeueBatch(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.entries))
	return slices.Clone(s.entries[:n]), nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	set := idSet(ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		_, ok := set[e.ID]
		return ok
	})
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Clear drops all entries; the sequence keeps counting.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
