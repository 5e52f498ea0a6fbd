// Package routing turns a packet and the current policy set into a dispatch
// decision.
package routing

import (
	"eeia/internal/domain"
	"eeia/internal/policy"
)

// Engine is a pure decision function over a policy registry. It holds no state
// of its own, so Route may be called concurrently.
//
// Engine never produces ShouldForward=false: withholding forwarding depends on
// downstream health, which only the caller knows.
type Engine struct {
	policies *policy.Registry
}

// New creates an engine over registry.
func New(registry *policy.Registry) *Engine {
	return &Engine{policies: registry}
}

// Route evaluates pkt against the registry.
func (e *Engine) Route(pkt domain.Packet) domain.RoutingDecision {
	if p, ok := e.policies.MatchForPacket(pkt); ok {
		matched := p
		return domain.RoutingDecision{
			Packet:               pkt,
			Policy:               &matched,
			TargetEndpoint:       p.TargetEndpoint,
			StoreInTimeseries:    p.StoreInTimeseries,
			StoreInObjectStorage: p.StoreInObjectStorage,
			ShouldForward:        true,
			Reasons:              []string{domain.ReasonMatchedPolicyPrefix + p.ID},
		}
	}
	return defaultDecision(pkt)
}

// defaultDecision applies when no policy matches. Control packets are neither
// stored in timeseries nor object storage; alerts go to both.
func defaultDecision(pkt domain.Packet) domain.RoutingDecision {
	t := pkt.Type()
	return domain.RoutingDecision{
		Packet: pkt,
		StoreInTimeseries: t == domain.PacketTypeTelemetry ||
			t == domain.PacketTypeHeartbeat ||
			t == domain.PacketTypeAlert,
		StoreInObjectStorage: t == domain.PacketTypeAlert,
		ShouldForward:        true,
		Reasons:              []string{domain.ReasonNoMatchingPolicy},
	}
}

// AddPolicies upserts each policy in order.
func (e *Engine) AddPolicies(policies []domain.Policy) {
	for _, p := range policies {
		e.policies.Upsert(p)
	}
}

// ClearPolicies empties the registry.
func (e *Engine) ClearPolicies() {
	e.policies.Clear()
}

// Policies exposes the underlying registry.
func (e *Engine) Policies() *policy.Registry {
	return e.policies
}
