package offlinequeue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eeia/internal/domain"
	"eeia/internal/offlinequeue"
	"eeia/internal/offlinequeue/mocks"
	"eeia/internal/policy"
	"eeia/internal/routing"
	"eeia/pkg/platform/circuit"
)

type RedelivererSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	forwarder *mocks.MockForwarder
	queue     *offlinequeue.Queue
	breakers  *circuit.Set
	engine    *routing.Engine
	logger    *slog.Logger
}

func TestRedelivererSuite(t *testing.T) {
	suite.Run(t, new(RedelivererSuite))
}

func (s *RedelivererSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.forwarder = mocks.NewMockForwarder(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.queue = offlinequeue.New(offlinequeue.NewMemoryStore(), offlinequeue.WithLogger(s.logger))
	s.breakers = circuit.NewSet(circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))

	p, err := domain.NewPolicy("pol-orbit", "orbit relay",
		domain.MatchEnvironment(domain.EnvironmentOrbit),
		domain.WithTarget("https://relay.example.net/ingest"),
	)
	s.Require().NoError(err)
	s.engine = routing.New(policy.NewRegistry(p))
}

func (s *RedelivererSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RedelivererSuite) redeliverer(opts ...offlinequeue.RedelivererOption) *offlinequeue.Redeliverer {
	opts = append([]offlinequeue.RedelivererOption{
		offlinequeue.WithRedeliveryLogger(s.logger),
		offlinequeue.WithBreakers(s.breakers),
	}, opts...)
	r, err := offlinequeue.NewRedeliverer(s.queue, s.engine, s.forwarder, opts...)
	s.Require().NoError(err)
	return r
}

func (s *RedelivererSuite) enqueue(n int) []int64 {
	ids := make([]int64, 0, n)
	for i := range n {
		id, err := s.queue.Enqueue(context.Background(), makePacket(s.T(), i))
		s.Require().NoError(err)
		ids = append(ids, id)
	}
	return ids
}

func (s *RedelivererSuite) TestNewRedeliverer() {
	_, err := offlinequeue.NewRedeliverer(nil, s.engine, s.forwarder)
	s.ErrorContains(err, "queue is required")
	_, err = offlinequeue.NewRedeliverer(s.queue, nil, s.forwarder)
	s.ErrorContains(err, "router is required")
	_, err = offlinequeue.NewRedeliverer(s.queue, s.engine, nil)
	s.ErrorContains(err, "forwarder is required")
}

func (s *RedelivererSuite) TestDrainDeletesOnlyDelivered() {
	ctx := context.Background()
	ids := s.enqueue(3)

	s.forwarder.EXPECT().Forward(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.RoutingDecision) error {
			s.Equal("https://relay.example.net/ingest", d.TargetEndpoint)
			if d.Packet.ID() == "pkt-offline-0001" {
				return errors.New("503 from relay")
			}
			return nil
		}).Times(3)

	res, err := s.redeliverer().DrainOnce(ctx)
	s.Require().NoError(err)
	s.Equal(3, res.Attempted)
	s.Equal(2, res.Delivered)
	s.Equal(1, res.Failed)
	s.Equal(1, res.Remaining)
	s.ElementsMatch([]int64{ids[0], ids[2]}, res.Deleted)

	left, err := s.queue.DequeueBatch(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(left, 1)
	s.Equal(ids[1], left[0].ID)
}

func (s *RedelivererSuite) TestDrainRespectsBatchSize() {
	s.enqueue(5)
	s.forwarder.EXPECT().Forward(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	res, err := s.redeliverer(offlinequeue.WithBatchSize(2), offlinequeue.WithParallelism(1)).DrainOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(2, res.Delivered)
	s.Equal(3, res.Remaining)
}

func (s *RedelivererSuite) TestDrainEmptyQueue() {
	res, err := s.redeliverer().DrainOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(res.Attempted)
}

func (s *RedelivererSuite) TestFailuresOpenBreakerAndSuccessCloses() {
	ctx := context.Background()
	target := "https://relay.example.net/ingest"
	s.enqueue(2)

	s.forwarder.EXPECT().Forward(gomock.Any(), gomock.Any()).Return(errors.New("down")).Times(2)
	_, err := s.redeliverer().DrainOnce(ctx)
	s.Require().NoError(err)
	s.True(s.breakers.For(target).IsOpen())

	s.forwarder.EXPECT().Forward(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	res, err := s.redeliverer().DrainOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Delivered)
	s.False(s.breakers.For(target).IsOpen())
}

func (s *RedelivererSuite) TestDrainCancelledMidPass() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ids := s.enqueue(3)

	s.forwarder.EXPECT().Forward(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, domain.RoutingDecision) error {
			cancel()
			return nil
		}).Times(1)

	res, err := s.redeliverer(offlinequeue.WithParallelism(1)).DrainOnce(ctx)
	s.Require().ErrorIs(err, context.Canceled)
	s.Equal(3, res.Attempted)
	s.Equal(1, res.Delivered)
	s.Equal([]int64{ids[0]}, res.Deleted)

	left, err := s.queue.DequeueBatch(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(left, 2)
	s.Equal(ids[1], left[0].ID)
}

func (s *RedelivererSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.redeliverer().Run(ctx)
	s.ErrorIs(err, context.Canceled)
}

func TestLogForwarder(t *testing.T) {
	pkt := makePacket(t, 1)
	err := offlinequeue.LogForwarder{}.Forward(context.Background(), domain.RoutingDecision{Packet: pkt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
