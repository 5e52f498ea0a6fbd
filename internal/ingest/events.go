package ingest

import (
	"context"

	"eeia/internal/domain"
	"eeia/internal/security"
	"eeia/pkg/platform/audit"
	"eeia/pkg/requestcontext"
)

// eventBase carries the request-scoped fields shared by every event.
type eventBase struct {
	traceID   string
	requestID string
	clientIP  string
}

func (b eventBase) event(action audit.AuditEvent, severity audit.Severity, pkt domain.Packet) audit.Event {
	return audit.Event{
		Action:    action,
		Severity:  severity,
		Subject:   pkt.DeviceID(),
		PacketID:  pkt.ID(),
		RequestID: b.requestID,
		TraceID:   b.traceID,
		ClientIP:  b.clientIP,
	}
}

func (b eventBase) rejection(pkt domain.Packet, res security.EntryResult) audit.Event {
	action, severity := audit.EventPacketRejected, audit.SeverityWarning
	if res.Reason == security.ReasonRiskBlock {
		action, severity = audit.EventRiskBlocked, audit.SeverityCritical
	}
	e := b.event(action, severity, pkt)
	e.Reason = res.Reason
	e.RiskScore = riskScore(res)
	return e
}

func (b eventBase) strictAudit(pkt domain.Packet, res security.EntryResult) audit.Event {
	e := b.event(audit.EventStrictAudit, audit.SeverityWarning, pkt)
	e.RiskScore = riskScore(res)
	if res.Risk != nil {
		e.Reason = res.Risk.Label
	}
	return e
}

func (b eventBase) withheld(pkt domain.Packet, d domain.RoutingDecision) audit.Event {
	e := b.event(audit.EventPacketWithheld, audit.SeverityInfo, pkt)
	e.Reason = domain.ReasonDownstreamUnavailable + ":" + d.Target()
	return e
}

func riskScore(res security.EntryResult) *float64 {
	if res.Risk == nil {
		return nil
	}
	score := res.Risk.Score
	return &score
}

// adminEvent builds an operator action event from the request context.
func adminEvent(ctx context.Context, action audit.AuditEvent, subject, reason string) audit.Event {
	requestID := requestcontext.RequestID(ctx)
	return audit.Event{
		Action:    action,
		Subject:   subject,
		Reason:    reason,
		RequestID: requestID,
		TraceID:   requestID,
		ActorID:   "admin",
	}
}
