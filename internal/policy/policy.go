// Package policy holds the ordered policy registry and its first-match lookup.
package policy

import (
	"slices"
	"sync"

	"eeia/internal/domain"
)

// Registry is an ordered collection of policies.
//
// Order is insertion order and decides precedence: the first policy whose
// predicates all pass wins. Upsert removes any policy with the same id and then
// appends, so a replaced policy moves to the end of the match order.
//
// All mutations take the write lock and lookups take the read lock, so a match
// never observes a policy mid-replacement.
type Registry struct {
	mu       sync.RWMutex
	policies []domain.Policy
}

// NewRegistry creates a registry seeded with policies in order. Seeding goes
// through Upsert, so a duplicate id keeps only its last occurrence.
func NewRegistry(policies ...domain.Policy) *Registry {
	r := &Registry{}
	for _, p := range policies {
		r.Upsert(p)
	}
	return r
}

// Upsert removes any policy with p's id, then appends p.
func (r *Registry) Upsert(p domain.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = slices.DeleteFunc(r.policies, func(existing domain.Policy) bool {
		return existing.ID == p.ID
	})
	r.policies = append(r.policies, p)
}

// Remove deletes the policy with id. Absent ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = slices.DeleteFunc(r.policies, func(existing domain.Policy) bool {
		return existing.ID == id
	})
}

// Get returns the policy with id.
func (r *Registry) Get(id string) (domain.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Policy{}, false
}

// All returns a copy of the policies in match order.
func (r *Registry) All() []domain.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.policies)
}

// Len returns the number of registered policies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Clear drops every policy.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = nil
}

// MatchForPacket returns the first policy whose set predicates all accept pkt.
func (r *Registry) MatchForPacket(pkt domain.Packet) (domain.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.Matches(pkt) {
			return p, true
		}
	}
	return domain.Policy{}, false
}
