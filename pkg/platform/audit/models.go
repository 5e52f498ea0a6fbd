package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, sinks and topics.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and forensics:
	// authentication failures, risk blocks, key registration and revocation.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility:
	// packets parked offline, redelivery passes, policy changes.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AuditEvent names an action.
type AuditEvent string

const (
	// Gate events
	EventPacketRejected AuditEvent = "packet_rejected"
	EventRiskBlocked    AuditEvent = "risk_blocked"
	EventStrictAudit    AuditEvent = "risk_strict_audit"

	// Routing events
	EventPacketWithheld AuditEvent = "packet_withheld"
	EventQueueDrained   AuditEvent = "queue_drained"
	EventQueueCleared   AuditEvent = "queue_cleared"

	// Admin events
	EventPolicyUpserted AuditEvent = "policy_upserted"
	EventPolicyRemoved  AuditEvent = "policy_removed"
	EventKeyRegistered  AuditEvent = "device_key_registered"
	EventKeyRevoked     AuditEvent = "device_key_revoked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPacketRejected: CategorySecurity,
	EventRiskBlocked:    CategorySecurity,
	EventStrictAudit:    CategorySecurity,
	EventKeyRegistered:  CategorySecurity,
	EventKeyRevoked:     CategorySecurity,

	EventPacketWithheld: CategoryOperations,
	EventQueueDrained:   CategoryOperations,
	EventQueueCleared:   CategoryOperations,
	EventPolicyUpserted: CategoryOperations,
	EventPolicyRemoved:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from the ingest pipeline and admin handlers. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    AuditEvent    `json:"action"`
	Severity  Severity      `json:"severity"`
	// Subject is the entity acted on: a device id, policy id or queue name.
	Subject   string   `json:"subject"`
	PacketID  string   `json:"packet_id,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	RiskScore *float64 `json:"risk_score,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
	TraceID   string   `json:"trace_id,omitempty"`
	ActorID   string   `json:"actor_id,omitempty"`
	ClientIP  string   `json:"client_ip,omitempty"`
}

// Normalize fills the id, category, timestamp and severity when unset.
func (e Event) Normalize(now time.Time) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Category == "" {
		e.Category = e.Action.Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	return e
}

// Publisher accepts events from domain code.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Sink persists or ships a batch of normalized events.
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
