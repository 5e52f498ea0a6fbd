//go:build integration

package offlinequeue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"eeia/internal/offlinequeue"
	"eeia/pkg/testutil/containers"
)

const testStream = "EEIA_OFFLINE_TEST"

type JetStreamStoreSuite struct {
	StoreSuite
	nats *containers.NATSContainer
}

func TestJetStreamStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(JetStreamStoreSuite))
}

func (s *JetStreamStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.nats = mgr.GetNATS(s.T())

	var store *offlinequeue.JetStreamStore
	s.reset = func() {
		ctx := context.Background()
		s.Require().NoError(s.nats.DeleteStream(ctx, testStream))
		var err error
		store, err = offlinequeue.NewJetStreamStore(ctx, s.nats.JetStream,
			offlinequeue.WithStream(testStream, "eeia.test.offline"),
		)
		s.Require().NoError(err)
	}
	s.newStore = func() offlinequeue.Store { return store }
}

func (s *JetStreamStoreSuite) TestReopenKeepsEntries() {
	ctx := context.Background()
	id, err := s.store.Enqueue(ctx, makePacket(s.T(), 1))
	s.Require().NoError(err)

	reopened, err := offlinequeue.NewJetStreamStore(ctx, s.nats.JetStream,
		offlinequeue.WithStream(testStream, "eeia.test.offline"),
	)
	s.Require().NoError(err)
	batch, err := reopened.DequeueBatch(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(id, batch[0].ID)
}
