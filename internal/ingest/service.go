// Package ingest runs one packet through the edge pipeline: entry gate,
// routing, downstream delivery and, when forwarding is withheld or the
// delivery fails, the offline queue.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eeia/internal/domain"
	"eeia/internal/security"
	"eeia/pkg/platform/audit"
	"eeia/pkg/platform/circuit"
	"eeia/pkg/requestcontext"
)

// DefaultKeyID is assumed when a device sends no key id header.
const DefaultKeyID = "default"

//go:generate mockgen -source=service.go -destination=mocks/service_mocks.go -package=mocks Gate,Router,Enqueuer,Recorder,Forwarder

// Gate admits packets into routing.
type Gate interface {
	ValidatePacketEntry(ctx context.Context, pkt domain.Packet, keyID, signature string) security.EntryResult
}

// Router evaluates the policy set.
type Router interface {
	Route(pkt domain.Packet) domain.RoutingDecision
}

// Enqueuer parks packets offline.
type Enqueuer interface {
	Enqueue(ctx context.Context, pkt domain.Packet) (int64, error)
}

// Recorder tallies routing outcomes.
type Recorder interface {
	Record(d domain.RoutingDecision)
}

// Forwarder delivers a routed packet to its downstream target.
type Forwarder interface {
	Forward(ctx context.Context, d domain.RoutingDecision) error
}

// Request is one decoded packet plus the transport's authentication material.
type Request struct {
	Packet    domain.Packet
	KeyID     string
	Signature string
	// TraceID overrides the request id from the context.
	TraceID  string
	ClientIP string
}

// Result is what the caller reports back to the device.
type Result struct {
	TraceID  string
	Entry    security.EntryResult
	Decision domain.RoutingDecision
	// Forwarded is set once the downstream accepted the packet.
	Forwarded bool
	Queued    bool
	QueueID   int64
}

// Service wires the pipeline stages together.
type Service struct {
	gate      Gate
	router    Router
	queue     Enqueuer
	recorder  Recorder
	forwarder Forwarder
	breakers  *circuit.Set
	audit     audit.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithForwarder attempts delivery of every forwardable packet. A failed
// delivery counts against the target breaker and the packet is queued.
func WithForwarder(f Forwarder) Option {
	return func(s *Service) { s.forwarder = f }
}

// WithBreakers enables the downstream health check. Packets whose target
// breaker is open are withheld and queued without a delivery attempt.
func WithBreakers(set *circuit.Set) Option {
	return func(s *Service) { s.breakers = set }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.audit = p
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates the pipeline. gate, router and queue are required.
func New(gate Gate, router Router, queue Enqueuer, opts ...Option) (*Service, error) {
	if gate == nil || router == nil || queue == nil {
		return nil, fmt.Errorf("gate, router and queue are required")
	}
	s := &Service{
		gate:   gate,
		router: router,
		queue:  queue,
		audit:  audit.Nop{},
		logger: slog.Default(),
		tracer: otel.Tracer("eeia/ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process authenticates, routes and, if needed, queues one packet.
//
// Gate rejections return the populated Result together with the domain error
// from EntryResult.Err, so callers can still report the risk score. Queue
// failures are returned as storage errors and the packet is not acknowledged.
func (s *Service) Process(ctx context.Context, req Request) (Result, error) {
	pkt := req.Packet
	traceID := s.traceID(ctx, req.TraceID)
	ctx, span := s.tracer.Start(ctx, "ingest.Process", trace.WithAttributes(
		attribute.String("eeia.trace_id", traceID),
		attribute.String("eeia.packet_id", pkt.ID()),
		attribute.String("eeia.device_id", pkt.DeviceID()),
		attribute.String("eeia.domain", pkt.Domain().String()),
	))
	defer span.End()

	result := Result{TraceID: traceID}
	ev := eventBase{traceID: traceID, requestID: requestcontext.RequestID(ctx), clientIP: req.ClientIP}

	keyID := req.KeyID
	if keyID == "" {
		keyID = DefaultKeyID
	}
	result.Entry = s.authenticate(ctx, pkt, keyID, req.Signature)
	if !result.Entry.OK {
		err := result.Entry.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, result.Entry.Reason)
		s.logger.WarnContext(ctx, "packet rejected at entry",
			"trace_id", traceID,
			"packet_id", pkt.ID(),
			"device_id", pkt.DeviceID(),
			"key_id", keyID,
			"reason", result.Entry.Reason,
		)
		s.emit(ctx, ev.rejection(pkt, result.Entry))
		return result, err
	}
	if result.Entry.StrictAudit {
		s.emit(ctx, ev.strictAudit(pkt, result.Entry))
	}

	decision := s.route(ctx, pkt)
	if decision.ShouldForward {
		if s.downstreamOpen(decision.Target()) || !s.forward(ctx, decision) {
			decision = decision.Withhold(domain.ReasonDownstreamUnavailable)
			s.emit(ctx, ev.withheld(pkt, decision))
		} else {
			result.Forwarded = s.forwarder != nil
		}
	}
	result.Decision = decision

	if !decision.ShouldForward {
		id, err := s.enqueue(ctx, pkt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			s.logger.ErrorContext(ctx, "failed to park packet offline",
				"trace_id", traceID,
				"packet_id", pkt.ID(),
				"error", err,
			)
			return result, err
		}
		result.Queued = true
		result.QueueID = id
	}

	if s.recorder != nil {
		s.recorder.Record(decision)
	}
	span.SetAttributes(
		attribute.String("eeia.policy_id", decision.PolicyID()),
		attribute.Bool("eeia.should_forward", decision.ShouldForward),
		attribute.Bool("eeia.queued", result.Queued),
	)
	return result, nil
}

func (s *Service) authenticate(ctx context.Context, pkt domain.Packet, keyID, signature string) security.EntryResult {
	ctx, span := s.tracer.Start(ctx, "ingest.authenticate", trace.WithAttributes(
		attribute.String("eeia.key_id", keyID),
		attribute.Bool("eeia.signed", signature != ""),
	))
	defer span.End()

	res := s.gate.ValidatePacketEntry(ctx, pkt, keyID, signature)
	span.SetAttributes(attribute.Bool("eeia.entry_ok", res.OK))
	if res.Risk != nil {
		span.SetAttributes(attribute.Float64("eeia.risk_score", res.Risk.Score))
	}
	return res
}

func (s *Service) route(ctx context.Context, pkt domain.Packet) domain.RoutingDecision {
	_, span := s.tracer.Start(ctx, "ingest.route")
	defer span.End()
	return s.router.Route(pkt)
}

func (s *Service) enqueue(ctx context.Context, pkt domain.Packet) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.enqueue")
	defer span.End()
	id, err := s.queue.Enqueue(ctx, pkt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return id, err
}

// forward reports whether the downstream took the packet. Without a
// forwarder delivery is left to the caller and counts as taken.
func (s *Service) forward(ctx context.Context, d domain.RoutingDecision) bool {
	if s.forwarder == nil {
		return true
	}
	ctx, span := s.tracer.Start(ctx, "ingest.forward", trace.WithAttributes(
		attribute.String("eeia.target", d.Target()),
	))
	defer span.End()

	err := s.forwarder.Forward(ctx, d)
	if err == nil {
		if s.breakers != nil {
			if _, change := s.breakers.For(d.Target()).RecordSuccess(); change.Closed {
				s.logger.InfoContext(ctx, "downstream circuit closed", "target", d.Target())
			}
		}
		return true
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "forward failed")
	s.logger.WarnContext(ctx, "downstream delivery failed",
		"packet_id", d.Packet.ID(),
		"target", d.Target(),
		"error", err,
	)
	if s.breakers != nil {
		if _, change := s.breakers.For(d.Target()).RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "downstream circuit opened", "target", d.Target())
		}
	}
	return false
}

func (s *Service) downstreamOpen(target string) bool {
	return s.breakers != nil && s.breakers.For(target).IsOpen()
}

func (s *Service) traceID(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// emit never fails the request; audit delivery problems are logged.
func (s *Service) emit(ctx context.Context, e audit.Event) {
	if err := s.audit.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", e.Action,
			"trace_id", e.TraceID,
			"error", err,
		)
	}
}
