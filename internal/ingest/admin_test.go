package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eeia/internal/domain"
	"eeia/internal/ingest"
	"eeia/internal/ingest/mocks"
	"eeia/internal/offlinequeue"
	"eeia/internal/policy"
	"eeia/internal/security"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/platform/audit"
	auditmemory "eeia/pkg/platform/audit/store/memory"
	"eeia/pkg/platform/circuit"
	"eeia/pkg/requestcontext"
)

type AdminSuite struct {
	suite.Suite
	ctx      context.Context
	policies *policy.Registry
	keys     *security.SingleKeyStore
	queue    *mocks.MockQueueInspector
	drainer  *mocks.MockDrainer
	events   *auditmemory.InMemoryStore
	breakers *circuit.Set
	admin    *ingest.Admin
}

func TestAdminSuite(t *testing.T) {
	suite.Run(t, new(AdminSuite))
}

func (s *AdminSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-admin")
	s.policies = policy.NewRegistry()
	s.keys = security.NewSingleKeyStore()
	s.queue = mocks.NewMockQueueInspector(ctrl)
	s.drainer = mocks.NewMockDrainer(ctrl)
	s.events = auditmemory.NewInMemoryStore()
	s.breakers = circuit.NewSet(circuit.WithFailureThreshold(1))
	s.queue.EXPECT().Backend().Return("memory").AnyTimes()

	a, err := ingest.NewAdmin(s.policies, s.keys, s.queue,
		ingest.WithDrainer(s.drainer),
		ingest.WithAdminBreakers(s.breakers),
		ingest.WithAdminAudit(s.events),
		ingest.WithAdminLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.admin = a
}

func (s *AdminSuite) lastEvent() audit.Event {
	all, err := s.events.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().NotEmpty(all)
	return all[len(all)-1]
}

func (s *AdminSuite) TestPolicyLifecycle() {
	first, err := domain.NewPolicy("pol-first", "first policy")
	s.Require().NoError(err)
	second, err := domain.NewPolicy("pol-second", "second policy")
	s.Require().NoError(err)

	_, err = s.admin.UpsertPolicy(s.ctx, first)
	s.Require().NoError(err)
	_, err = s.admin.UpsertPolicy(s.ctx, second)
	s.Require().NoError(err)
	_, err = s.admin.UpsertPolicy(s.ctx, first)
	s.Require().NoError(err)

	ids := []string{}
	for _, p := range s.admin.Policies(s.ctx) {
		ids = append(ids, p.ID)
	}
	s.Equal([]string{"pol-second", "pol-first"}, ids)
	s.Equal(audit.EventPolicyUpserted, s.lastEvent().Action)

	s.Require().NoError(s.admin.RemovePolicy(s.ctx, "pol-second"))
	s.Equal(audit.EventPolicyRemoved, s.lastEvent().Action)
	s.Equal("req-admin", s.lastEvent().RequestID)

	err = s.admin.RemovePolicy(s.ctx, "pol-second")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AdminSuite) TestUpsertRejectsInvalidPolicy() {
	_, err := s.admin.UpsertPolicy(s.ctx, domain.Policy{ID: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AdminSuite) TestRegisterKeyGeneratesSecret() {
	reg, err := s.admin.RegisterKey(s.ctx, ingest.KeyRegistration{DeviceID: "dev-pump-3", KeyID: "default"})
	s.Require().NoError(err)
	s.NotEmpty(reg.GeneratedSecret)
	s.Equal([]byte(reg.GeneratedSecret), reg.Key.Secret)

	key, ok := s.keys.Lookup("dev-pump-3", "default")
	s.True(ok)
	s.Equal(security.AlgorithmHS256, key.Algorithm)
	s.Equal(audit.EventKeyRegistered, s.lastEvent().Action)
	s.Equal(audit.CategorySecurity, s.lastEvent().Category)
}

func (s *AdminSuite) TestRegisterKeyWithSuppliedSecret() {
	reg, err := s.admin.RegisterKey(s.ctx, ingest.KeyRegistration{DeviceID: "dev-pump-3", KeyID: "k2", Secret: "shared"})
	s.Require().NoError(err)
	s.Empty(reg.GeneratedSecret)
}

func (s *AdminSuite) TestRegisterKeyRejectsUnknownAlgorithm() {
	_, err := s.admin.RegisterKey(s.ctx, ingest.KeyRegistration{DeviceID: "dev-pump-3", KeyID: "k2", Secret: "x", Algorithm: "RS256"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AdminSuite) TestRevokeKey() {
	_, err := s.admin.RegisterKey(s.ctx, ingest.KeyRegistration{DeviceID: "dev-pump-3", KeyID: "default", Secret: "s1"})
	s.Require().NoError(err)

	s.Require().NoError(s.admin.RevokeKey(s.ctx, "dev-pump-3", "default"))
	_, ok := s.keys.Lookup("dev-pump-3", "default")
	s.False(ok)
	s.Equal(audit.EventKeyRevoked, s.lastEvent().Action)

	err = s.admin.RevokeKey(s.ctx, "dev-unknown", "default")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AdminSuite) TestQueueStatus() {
	s.queue.EXPECT().Count(gomock.Any()).Return(3, nil)
	s.breakers.For("https://b.example.net").RecordFailure()
	s.breakers.For("https://a.example.net").RecordFailure()
	s.breakers.For("https://c.example.net")

	status, err := s.admin.QueueStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, status.Depth)
	s.Equal("memory", status.Backend)
	s.Equal([]string{"https://a.example.net", "https://b.example.net"}, status.OpenBreakers)
}

func (s *AdminSuite) TestQueueStatusStorageError() {
	s.queue.EXPECT().Count(gomock.Any()).Return(0, dErrors.New(dErrors.CodeStorage, "offline queue count failed"))
	_, err := s.admin.QueueStatus(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeStorage))
}

func (s *AdminSuite) TestDrain() {
	s.drainer.EXPECT().DrainOnce(gomock.Any()).Return(offlinequeue.DrainResult{Attempted: 2, Delivered: 2}, nil)

	res, err := s.admin.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, res.Delivered)
	s.Equal(audit.EventQueueDrained, s.lastEvent().Action)
}

func (s *AdminSuite) TestDrainError() {
	s.drainer.EXPECT().DrainOnce(gomock.Any()).Return(offlinequeue.DrainResult{}, errors.New("boom"))
	_, err := s.admin.Drain(s.ctx)
	s.Error(err)
}

func (s *AdminSuite) TestDrainWithoutWorker() {
	a, err := ingest.NewAdmin(s.policies, s.keys, s.queue)
	s.Require().NoError(err)
	_, err = a.Drain(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AdminSuite) TestClearQueue() {
	s.queue.EXPECT().Clear(gomock.Any()).Return(nil)
	s.Require().NoError(s.admin.ClearQueue(s.ctx))
	ev := s.lastEvent()
	s.Equal(audit.EventQueueCleared, ev.Action)
	s.Equal(audit.SeverityWarning, ev.Severity)
}
