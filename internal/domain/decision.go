package domain

// Reason tags recorded on routing decisions.
const (
	ReasonNoMatchingPolicy      = "no_matching_policy"
	ReasonMatchedPolicyPrefix   = "matched_policy:"
	ReasonDownstreamUnavailable = "downstream_unavailable"
)

// RoutingDecision is the outcome of evaluating one packet against the policy
// set. It is produced fresh per call and never persisted.
type RoutingDecision struct {
	Packet Packet
	// Policy is nil when no policy matched.
	Policy *Policy

	// TargetEndpoint is empty when the caller should use its system default.
	TargetEndpoint       string
	StoreInTimeseries    bool
	StoreInObjectStorage bool
	ShouldForward        bool
	Reasons              []string
}

// PolicyID returns the matched policy id, or "" when none matched.
func (d RoutingDecision) PolicyID() string {
	if d.Policy == nil {
		return ""
	}
	return d.Policy.ID
}

// Withhold returns a copy of d with forwarding withheld and reason appended.
// Routing never does this itself; callers do when downstream is unhealthy.
func (d RoutingDecision) Withhold(reason string) RoutingDecision {
	out := d
	out.ShouldForward = false
	out.Reasons = append(append([]string(nil), d.Reasons...), reason)
	return out
}

// DefaultTarget keys downstream health when a decision has no explicit target.
const DefaultTarget = "default"

// Target returns the endpoint used to key downstream health checks.
func (d RoutingDecision) Target() string {
	if d.TargetEndpoint == "" {
		return DefaultTarget
	}
	return d.TargetEndpoint
}
