package offlinequeue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eeia/internal/domain"
	dErrors "eeia/pkg/domain-errors"
)

// Metrics holds the queue instruments.
type Metrics struct {
	Enqueued  prometheus.Counter
	Deleted   prometheus.Counter
	Depth     prometheus.Gauge
	Errors    *prometheus.CounterVec
	LatencyMs *prometheus.HistogramVec
}

// NewMetrics registers the queue instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_offline_enqueued_total",
			Help: "Packets written to the offline queue",
		}),
		Deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_offline_deleted_total",
			Help: "Ids passed to delete_many",
		}),
		Depth: f.NewGauge(prometheus.GaugeOpts{
			Name: "eeia_offline_depth",
			Help: "Last observed offline queue depth",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eeia_offline_errors_total",
			Help: "Offline queue backend errors by operation",
		}, []string{"op"}),
		LatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eeia_offline_op_duration_ms",
			Help:    "Offline queue operation latency in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"op"}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.LatencyMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		m.Errors.WithLabelValues(op).Inc()
	}
}

// Queue fronts a Store. It serialises calls within the process, tags backend
// failures with CodeStorage, and records metrics and spans.
type Queue struct {
	store   Store
	backend string
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithBackendName labels spans and logs with the backend kind.
func WithBackendName(name string) Option {
	return func(q *Queue) {
		q.backend = name
	}
}

// New wraps store.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		backend: BackendMemory,
		logger:  slog.Default(),
		tracer:  otel.Tracer("eeia/offlinequeue"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *Queue) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("offlinequeue.backend", q.backend))
	return q.tracer.Start(ctx, "offlinequeue."+op, trace.WithAttributes(attrs...))
}

func (q *Queue) finish(span trace.Span, op string, start time.Time, err error) error {
	q.metrics.observe(op, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	span.End()
	return dErrors.Wrap(err, dErrors.CodeStorage, "offline queue "+op+" failed")
}

// Enqueue appends pkt and returns its sequence id.
func (q *Queue) Enqueue(ctx context.Context, pkt domain.Packet) (int64, error) {
	if pkt.IsZero() {
		return 0, dErrors.New(dErrors.CodeValidation, "packet is required")
	}
	ctx, span := q.span(ctx, "enqueue", attribute.String("packet.id", pkt.ID()))
	start := time.Now()

	q.mu.Lock()
	id, err := q.store.Enqueue(ctx, pkt)
	q.mu.Unlock()

	if err == nil {
		span.SetAttributes(attribute.Int64("offlinequeue.id", id))
		if q.metrics != nil {
			q.metrics.Enqueued.Inc()
		}
		q.logger.DebugContext(ctx, "packet enqueued offline",
			"packet_id", pkt.ID(),
			"device_id", pkt.DeviceID(),
			"offline_id", id,
		)
	}
	return id, q.finish(span, "enqueue", start, err)
}

// DequeueBatch peeks at up to limit entries in ascending id order.
func (q *Queue) DequeueBatch(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	ctx, span := q.span(ctx, "dequeue_batch", attribute.Int("offlinequeue.limit", limit))
	start := time.Now()

	q.mu.Lock()
	entries, err := q.store.DequeueBatch(ctx, limit)
	q.mu.Unlock()

	span.SetAttributes(attribute.Int("offlinequeue.returned", len(entries)))
	if err := q.finish(span, "dequeue_batch", start, err); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteMany removes the given ids. Unknown ids are ignored.
func (q *Queue) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := q.span(ctx, "delete_many", attribute.Int("offlinequeue.ids", len(ids)))
	start := time.Now()

	q.mu.Lock()
	err := q.store.DeleteMany(ctx, ids)
	q.mu.Unlock()

	if err == nil && q.metrics != nil {
		q.metrics.Deleted.Add(float64(len(ids)))
	}
	return q.finish(span, "delete_many", start, err)
}

// Count returns the queue depth.
func (q *Queue) Count(ctx context.Context) (int, error) {
	ctx, span := q.span(ctx, "count")
	start := time.Now()

	n, err := q.store.Count(ctx)
	if err == nil && q.metrics != nil {
		q.metrics.Depth.Set(float64(n))
	}
	if err := q.finish(span, "count", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	ctx, span := q.span(ctx, "clear")
	start := time.Now()

	q.mu.Lock()
	err := q.store.Clear(ctx)
	q.mu.Unlock()

	if err == nil {
		if q.metrics != nil {
			q.metrics.Depth.Set(0)
		}
		q.logger.InfoContext(ctx, "offline queue cleared", "backend", q.backend)
	}
	return q.finish(span, "clear", start, err)
}

// Backend names the store kind.
func (q *Queue) Backend() string {
	return q.backend
}
