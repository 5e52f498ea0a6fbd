// Package security provides a buffered, non-blocking audit publisher.
//
// Emit never blocks the ingest path: events go into a bounded ring buffer and
// a background loop flushes them to a Sink (Kafka in production). When the
// sink is down the buffer keeps the newest events and counts what it drops.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "eeia/pkg/platform/audit"
)

const (
	defaultFlushInterval = time.Second
	defaultBatchSize     = 256
)

// Metrics holds Prometheus metrics for the buffered publisher.
type Metrics struct {
	Emitted       prometheus.Counter
	Dropped       prometheus.Counter
	Flushed       prometheus.Counter
	FlushFailures prometheus.Counter
	Buffered      prometheus.Gauge
}

// NewMetrics registers the publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_audit_events_emitted_total",
			Help: "Audit events accepted into the buffer",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
		Flushed: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_audit_events_flushed_total",
			Help: "Audit events written to the sink",
		}),
		FlushFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eeia_audit_flush_failures_total",
			Help: "Failed sink writes",
		}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Name: "eeia_audit_events_buffered",
			Help: "Audit events waiting to be flushed",
		}),
	}
}

// Publisher buffers events and flushes them to a sink.
type Publisher struct {
	sink          audit.Sink
	buffer        *RingBuffer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *Metrics
	now           func() time.Time

	flushMu sync.Mutex
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBufferCapacity bounds the number of pending events.
func WithBufferCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

// WithFlushInterval sets how often Run flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithBatchSize caps events per sink write.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a buffered publisher over sink.
func New(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:          sink,
		buffer:        NewRingBuffer(defaultBufferCapacity),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Emit normalizes event and buffers it. It never blocks on the sink.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	dropped := p.buffer.Enqueue(event.Normalize(p.now()))
	if p.metrics != nil {
		p.metrics.Emitted.Inc()
		if dropped {
			p.metrics.Dropped.Inc()
		}
		p.metrics.Buffered.Set(float64(p.buffer.Len()))
	}
	return nil
}

// Flush drains the buffer into the sink in batches. On a sink error the
// failed batch is put back ahead of newer events and the error returned.
func (p *Publisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			p.setBuffered()
			return nil
		}
		if err := p.sink.WriteBatch(ctx, batch); err != nil {
			dropped := p.buffer.Requeue(batch)
			if p.metrics != nil {
				p.metrics.FlushFailures.Inc()
				p.metrics.Dropped.Add(float64(dropped))
			}
			p.setBuffered()
			return err
		}
		if p.metrics != nil {
			p.metrics.Flushed.Add(float64(len(batch)))
		}
	}
}

func (p *Publisher) setBuffered() {
	if p.metrics != nil {
		p.metrics.Buffered.Set(float64(p.buffer.Len()))
	}
}

// Run flushes on every tick until ctx is cancelled, then makes a final
// best-effort flush with a short deadline.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.WarnContext(ctx, "audit flush failed",
					"buffered", p.buffer.Len(),
					"dropped", p.buffer.Dropped(),
					"error", err,
				)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := p.Flush(final); err != nil {
				p.logger.Error("final audit flush failed", "buffered", p.buffer.Len(), "error", err)
			}
			cancel()
			return ctx.Err()
		}
	}
}

// Buffered reports pending events.
func (p *Publisher) Buffered() int {
	return p.buffer.Len()
}
