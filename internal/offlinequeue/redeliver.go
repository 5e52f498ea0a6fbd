package offlinequeue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eeia/internal/domain"
	"eeia/pkg/platform/circuit"
)

//go:generate mockgen -source=redeliver.go -destination=mocks/redeliver_mocks.go -package=mocks Forwarder

const (
	defaultRedeliveryBatch       = 100
	defaultRedeliveryParallelism = 8
	defaultRedeliveryInterval    = 30 * time.Second
)

// Router re-resolves the decision for a queued packet. routing.Engine
// satisfies it.
type Router interface {
	Route(pkt domain.Packet) domain.RoutingDecision
}

// Forwarder delivers a packet to its decided target.
type Forwarder interface {
	Forward(ctx context.Context, decision domain.RoutingDecision) error
}

// LogForwarder acknowledges packets by logging them. Network delivery lives
// outside this service.
type LogForwarder struct {
	Logger *slog.Logger
}

func (f LogForwarder) Forward(ctx context.Context, d domain.RoutingDecision) error {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "packet forwarded",
		"packet_id", d.Packet.ID(),
		"device_id", d.Packet.DeviceID(),
		"target", d.Target(),
		"policy_id", d.PolicyID(),
	)
	return nil
}

// DrainResult summarises one redelivery pass.
type DrainResult struct {
	Attempted int     `json:"attempted"`
	Delivered int     `json:"delivered"`
	Failed    int     `json:"failed"`
	Remaining int     `json:"remaining"`
	Deleted   []int64 `json:"-"`
}

// Redeliverer drains the offline queue. Only successfully forwarded entries are
// deleted, so a failed or interrupted pass leaves the rest for the next one.
type Redeliverer struct {
	queue       *Queue
	router      Router
	forwarder   Forwarder
	breakers    *circuit.Set
	batch       int
	parallelism int
	interval    time.Duration
	logger      *slog.Logger

	// One pass at a time; a manual drain and the ticker must not overlap.
	passMu sync.Mutex
}

// RedelivererOption configures a Redeliverer.
type RedelivererOption func(*Redeliverer)

// WithBatchSize sets how many entries one pass reads.
func WithBatchSize(n int) RedelivererOption {
	return func(r *Redeliverer) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithParallelism bounds concurrent Forward calls.
func WithParallelism(n int) RedelivererOption {
	return func(r *Redeliverer) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithInterval sets the period used by Run.
func WithInterval(d time.Duration) RedelivererOption {
	return func(r *Redeliverer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBreakers feeds delivery outcomes into the per-target breakers.
func WithBreakers(set *circuit.Set) RedelivererOption {
	return func(r *Redeliverer) {
		r.breakers = set
	}
}

// WithRedeliveryLogger sets the logger.
func WithRedeliveryLogger(logger *slog.Logger) RedelivererOption {
	return func(r *Redeliverer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedeliverer builds a redelivery worker.
func NewRedeliverer(queue *Queue, router Router, forwarder Forwarder, opts ...RedelivererOption) (*Redeliverer, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("forwarder is required")
	}
	r := &Redeliverer{
		queue:       queue,
		router:      router,
		forwarder:   forwarder,
		batch:       defaultRedeliveryBatch,
		parallelism: defaultRedeliveryParallelism,
		interval:    defaultRedeliveryInterval,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// DrainOnce runs a single pass: peek a batch, forward each entry, delete the
// ones that were delivered.
func (r *Redeliverer) DrainOnce(ctx context.Context) (DrainResult, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	entries, err := r.queue.DequeueBatch(ctx, r.batch)
	if err != nil {
		return DrainResult{}, err
	}
	result := DrainResult{Attempted: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	delivered := make([]bool, len(entries))
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			decision := r.router.Route(entry.Packet)
			err := r.forwarder.Forward(ctx, decision)
			r.record(decision.Target(), err)
			if err != nil {
				r.logger.WarnContext(ctx, "redelivery failed",
					"offline_id", entry.ID,
					"packet_id", entry.Packet.ID(),
					"target", decision.Target(),
					"error", err,
				)
				// A delivery failure is per entry; only a cancelled pass
				// fails the group.
				return ctx.Err()
			}
			delivered[i] = true
			return nil
		})
	}
	waitErr := g.Wait()

	for i, ok := range delivered {
		if ok {
			result.Deleted = append(result.Deleted, entries[i].ID)
		}
	}
	result.Delivered = len(result.Deleted)
	result.Failed = result.Attempted - result.Delivered

	// Delivered entries are removed even when the pass was cancelled so they
	// are not sent twice.
	if err := r.queue.DeleteMany(context.WithoutCancel(ctx), result.Deleted); err != nil {
		return result, err
	}
	if waitErr != nil {
		return result, fmt.Errorf("redelivery pass interrupted: %w", waitErr)
	}
	remaining, err := r.queue.Count(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining

	r.logger.InfoContext(ctx, "redelivery pass complete",
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"remaining", result.Remaining,
	)
	return result, nil
}

func (r *Redeliverer) record(target string, err error) {
	if r.breakers == nil {
		return
	}
	b := r.breakers.For(target)
	if err != nil {
		if _, change := b.RecordFailure(); change.Opened {
			r.logger.Warn("downstream circuit opened", "target", target)
		}
		return
	}
	if _, change := b.RecordSuccess(); change.Closed {
		r.logger.Info("downstream circuit closed", "target", target)
	}
}

// Run drains on every tick until ctx is cancelled. Pass errors are logged and
// retried on the next tick.
func (r *Redeliverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.DrainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "redelivery pass failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
