package security_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	audit "eeia/pkg/platform/audit"
	"eeia/pkg/platform/audit/publishers/security"
	"eeia/pkg/platform/audit/store/memory"
)

type flakySink struct {
	mu    sync.Mutex
	fail  bool
	calls int
	inner audit.Sink
}

func (f *flakySink) WriteBatch(ctx context.Context, events []audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("broker unavailable")
	}
	return f.inner.WriteBatch(ctx, events)
}

type PublisherSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	sink    *flakySink
	metrics *security.Metrics
	pub     *security.Publisher
	now     time.Time
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.sink = &flakySink{inner: s.store}
	s.metrics = security.NewMetrics(prometheus.NewRegistry())
	s.now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	s.pub = security.New(s.sink,
		security.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		security.WithMetrics(s.metrics),
		security.WithBatchSize(2),
		security.WithClock(func() time.Time { return s.now }),
	)
}

func (s *PublisherSuite) TestEmitNormalizesAndBuffers() {
	ctx := context.Background()
	s.Require().NoError(s.pub.Emit(ctx, audit.Event{Action: audit.EventRiskBlocked, Subject: "dev-ecg-01"}))
	s.Equal(1, s.pub.Buffered())

	s.Require().NoError(s.pub.Flush(ctx))
	events, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	e := events[0]
	s.NotEqual(uuid.Nil, e.ID)
	s.Equal(audit.CategorySecurity, e.Category)
	s.Equal(audit.SeverityInfo, e.Severity)
	s.Equal(s.now, e.Timestamp)
}

func (s *PublisherSuite) TestFlushBatches() {
	ctx := context.Background()
	for range 5 {
		s.Require().NoError(s.pub.Emit(ctx, audit.Event{Action: audit.EventPacketWithheld, Subject: "dev-1"}))
	}
	s.Require().NoError(s.pub.Flush(ctx))
	s.Equal(3, s.sink.calls)
	s.Zero(s.pub.Buffered())
	s.Equal(5.0, testutil.ToFloat64(s.metrics.Flushed))
}

func (s *PublisherSuite) TestFailedFlushKeepsEvents() {
	ctx := context.Background()
	s.sink.fail = true
	s.Require().NoError(s.pub.Emit(ctx, audit.Event{Action: audit.EventPacketRejected, Subject: "dev-2"}))

	err := s.pub.Flush(ctx)
	s.Error(err)
	s.Equal(1, s.pub.Buffered())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FlushFailures))

	s.sink.fail = false
	s.Require().NoError(s.pub.Flush(ctx))
	events, _ := s.store.ListBySubject(ctx, "dev-2")
	s.Len(events, 1)
}

func (s *PublisherSuite) TestFailedFlushPreservesOrder() {
	ctx := context.Background()
	for _, subject := range []string{"a", "b", "c"} {
		s.Require().NoError(s.pub.Emit(ctx, audit.Event{Subject: subject}))
	}
	s.sink.fail = true
	s.Require().Error(s.pub.Flush(ctx))
	s.Require().NoError(s.pub.Emit(ctx, audit.Event{Subject: "d"}))

	s.sink.fail = false
	s.Require().NoError(s.pub.Flush(ctx))
	events, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	got := make([]string, 0, len(events))
	for _, e := range events {
		got = append(got, e.Subject)
	}
	s.Equal([]string{"a", "b", "c", "d"}, got)
}

func (s *PublisherSuite) TestDropsWhenFull() {
	pub := security.New(s.sink, security.WithBufferCapacity(1), security.WithMetrics(s.metrics))
	ctx := context.Background()
	s.Require().NoError(pub.Emit(ctx, audit.Event{Subject: "first"}))
	s.Require().NoError(pub.Emit(ctx, audit.Event{Subject: "second"}))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Dropped))

	s.Require().NoError(pub.Flush(ctx))
	events, _ := s.store.ListAll(ctx)
	s.Require().Len(events, 1)
	s.Equal("second", events[0].Subject)
}

func (s *PublisherSuite) TestRunFlushesOnShutdown() {
	pub := security.New(s.sink, security.WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(pub.Emit(ctx, audit.Event{Subject: "late"}))
	cancel()

	s.ErrorIs(pub.Run(ctx), context.Canceled)
	events, _ := s.store.ListBySubject(context.Background(), "late")
	s.Len(events, 1)
}
