package circuit

import "sync"

// Set lazily creates one breaker per name, all sharing the same options.
type Set struct {
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet builds an empty set.
func NewSet(opts ...Option) *Set {
	return &Set{opts: opts, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (s *Set) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = New(name, s.opts...)
		s.breakers[name] = b
	}
	return b
}

// Open lists the names of breakers currently open.
func (s *Set) Open() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name, b := range s.breakers {
		if b.IsOpen() {
			names = append(names, name)
		}
	}
	return names
}
