//go:build integration

package offlinequeue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"eeia/internal/offlinequeue"
	"eeia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	StoreSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())

	store := offlinequeue.NewPostgresStore(s.postgres.DB)
	s.Require().NoError(store.EnsureSchema(context.Background()))

	s.newStore = func() offlinequeue.Store { return store }
	s.reset = func() {
		s.Require().NoError(s.postgres.TruncateTables(context.Background(), "offline_packets"))
	}
}

func (s *PostgresStoreSuite) TestPayloadStoredVerbatim() {
	ctx := context.Background()
	pkt := makePacket(s.T(), 3)
	id, err := s.store.Enqueue(ctx, pkt)
	s.Require().NoError(err)

	var packetID, deviceID, createdAt string
	err = s.postgres.DB.QueryRowContext(ctx,
		`SELECT packet_id, device_id, created_at FROM offline_packets WHERE id = $1`, id,
	).Scan(&packetID, &deviceID, &createdAt)
	s.Require().NoError(err)
	s.Equal(pkt.ID(), packetID)
	s.Equal(pkt.DeviceID(), deviceID)
	s.Equal("2025-06-01T12:00:03.123456789Z", createdAt)
}

func (s *PostgresStoreSuite) TestEnsureSchemaIsIdempotent() {
	store := offlinequeue.NewPostgresStore(s.postgres.DB)
	s.NoError(store.EnsureSchema(context.Background()))
	s.NoError(store.EnsureSchema(context.Background()))
}
