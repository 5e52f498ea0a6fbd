package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eeia/internal/domain"
	"eeia/internal/ingest"
	"eeia/internal/ingest/handler/mocks"
	"eeia/internal/offlinequeue"
	"eeia/internal/routing/metrics"
	"eeia/internal/scoring"
	"eeia/internal/security"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/platform/middleware/device"
	"eeia/pkg/platform/middleware/request"
	"eeia/pkg/testutil"
)

const (
	adminToken = "op-token"
	packetJSON = `{"packet_id":"pkt-http-0001","device_id":"dev-http-1","created_at":"2025-11-20T07:30:00Z",` +
		`"environment":"ground","domain":"medical","packet_type":"alert","priority":"high","size_bytes":256,` +
		`"data":{"heart_rate":130},"metadata":{"patient_id":"anon"}}`
)

type HandlerSuite struct {
	suite.Suite
	ingest  *mocks.MockIngestor
	admin   *mocks.MockAdminService
	domains *mocks.MockDomainMetrics
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ingest = mocks.NewMockIngestor(ctrl)
	s.admin = mocks.NewMockAdminService(ctrl)
	s.domains = mocks.NewMockDomainMetrics(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	h := New(s.ingest, s.admin, s.domains, logger,
		WithAdminToken(adminToken, ""),
		WithGatherer(reg),
		WithMetrics(NewMetrics(reg)),
	)
	s.router = NewRouter(h, logger)
}

func (s *HandlerSuite) do(req *http.Request) map[string]any {
	rr := testutil.DoRequest(s.router, req)
	out := map[string]any{"_status": float64(rr.Code)}
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
		out["_status"] = float64(rr.Code)
	}
	return out
}

func (s *HandlerSuite) routeRequest() *http.Request {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/packets/route", packetJSON)
	req.Header.Set(request.HeaderRequestID, "trace-12345-explicit")
	req.Header.Set(device.HeaderKeyID, "default")
	req.Header.Set(device.HeaderSignature, "deadbeef")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	return req
}

func (s *HandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
}

func (s *HandlerSuite) TestRoutePacket() {
	s.Run("admitted default path", func() {
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req ingest.Request) (ingest.Result, error) {
				s.Equal("default", req.KeyID)
				s.Equal("deadbeef", req.Signature)
				s.Equal("trace-12345-explicit", req.TraceID)
				s.Equal("203.0.113.7", req.ClientIP)
				s.Equal("pkt-http-0001", req.Packet.ID())
				return ingest.Result{
					TraceID: req.TraceID,
					Entry:   security.EntryResult{OK: true},
					Decision: domain.RoutingDecision{
						Packet:               req.Packet,
						StoreInTimeseries:    true,
						StoreInObjectStorage: true,
						ShouldForward:        true,
						Reasons:              []string{domain.ReasonNoMatchingPolicy},
					},
				}, nil
			})

		rr := testutil.DoRequest(s.router, s.routeRequest())
		testutil.AssertStatusOK(s.T(), rr)
		s.Equal("trace-12345-explicit", rr.Header().Get(request.HeaderRequestID))

		resp := testutil.UnmarshalResponse[RouteResponse](s.T(), rr)
		s.Equal("trace-12345-explicit", resp.TraceID)
		s.Equal("dev-http-1", resp.DeviceID)
		s.Nil(resp.Decision.PolicyID)
		s.Nil(resp.Decision.TargetEndpoint)
		s.True(resp.Decision.ShouldForward)
		s.True(resp.Decision.StoreInObjectStorage)
		s.Nil(resp.Decision.ML)
		s.False(resp.Queued)
	})

	s.Run("queued with ml block", func() {
		risk := scoring.Result{Score: 0.87, Label: "suspicious", Reasons: []string{"unit-test-dummy"}}
		pol, err := domain.NewPolicy("pol-med", "medical relay", domain.WithTarget("https://relay.example.net/ingest"))
		s.Require().NoError(err)
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req ingest.Request) (ingest.Result, error) {
				return ingest.Result{
					TraceID: req.TraceID,
					Entry:   security.EntryResult{OK: true, StrictAudit: true, Risk: &risk},
					Decision: domain.RoutingDecision{
						Packet:         req.Packet,
						Policy:         &pol,
						TargetEndpoint: pol.TargetEndpoint,
						Reasons:        []string{"matched_policy:pol-med", domain.ReasonDownstreamUnavailable},
					},
					Queued:  true,
					QueueID: 4,
				}, nil
			})

		out := s.do(s.routeRequest())
		s.Equal(float64(http.StatusOK), out["_status"])
		s.Equal(true, out["queued"])
		decision := out["decision"].(map[string]any)
		s.Equal("pol-med", decision["policy_id"])
		s.Equal("https://relay.example.net/ingest", decision["target_endpoint"])
		s.Equal(true, decision["strict_audit"])
		ml := decision["ml"].(map[string]any)
		s.Equal("suspicious", ml["label"])
		s.Equal(0.87, ml["score"])
		s.Contains(ml["reasons"], "unit-test-dummy")
	})

	s.Run("generated trace id matches header", func() {
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req ingest.Request) (ingest.Result, error) {
				return ingest.Result{TraceID: req.TraceID, Entry: security.EntryResult{OK: true}}, nil
			})
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/packets/route", packetJSON)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[RouteResponse](s.T(), rr)
		s.NotEmpty(resp.TraceID)
		s.Equal(resp.TraceID, rr.Header().Get(request.HeaderRequestID))
		s.Equal([]string{}, resp.Decision.Reasons)
	})
}

func (s *HandlerSuite) TestRoutePacketInvalidInput() {
	cases := map[string]string{
		"malformed json": `{"packet_id":`,
		"unknown field":  `{"packet_id":"pkt-http-0001","device_id":"dev-http-1","environment":"ground","size_bytes":1,"data":{},"metadata":{},"extra":1}`,
		"bad enum":       `{"packet_id":"pkt-http-0001","device_id":"dev-http-1","environment":"mars","size_bytes":1,"data":{},"metadata":{}}`,
		"short id":       `{"packet_id":"p1","device_id":"dev-http-1","environment":"ground","size_bytes":1,"data":{},"metadata":{}}`,
	}
	for name, body := range cases {
		s.Run(name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/packets/route", body))
			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		})
	}
}

func (s *HandlerSuite) TestRoutePacketRejections() {
	s.Run("signature mismatch is 401", func() {
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).Return(
			ingest.Result{TraceID: "t-1", Entry: security.EntryResult{Reason: security.ReasonSignatureMismatch, Blocked: true}},
			dErrors.New(dErrors.CodeUnauthorized, security.ReasonSignatureMismatch),
		)
		out := s.do(s.routeRequest())
		s.Equal(float64(http.StatusUnauthorized), out["_status"])
		s.Equal("unauthorized", out["error"])
		s.Equal(security.ReasonSignatureMismatch, out["reason"])
		s.Equal("t-1", out["trace_id"])
		s.NotContains(out, "risk_score")
	})

	s.Run("risk block is 403 with score", func() {
		risk := scoring.Result{Score: 0.93, Label: scoring.LabelHigh}
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).Return(
			ingest.Result{TraceID: "t-2", Entry: security.EntryResult{Reason: security.ReasonRiskBlock, Blocked: true, Risk: &risk}},
			dErrors.New(dErrors.CodeForbidden, "ml_risk_block (score 0.93)"),
		)
		out := s.do(s.routeRequest())
		s.Equal(float64(http.StatusForbidden), out["_status"])
		s.Equal(security.ReasonRiskBlock, out["reason"])
		s.Equal(0.93, out["risk_score"])
	})

	s.Run("storage failure is 503", func() {
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).Return(
			ingest.Result{}, dErrors.Wrap(errors.New("conn refused"), dErrors.CodeStorage, "offline queue enqueue failed"),
		)
		rr := testutil.DoRequest(s.router, s.routeRequest())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "storage_error")
	})

	s.Run("unexpected failure is 500", func() {
		s.ingest.EXPECT().Process(gomock.Any(), gomock.Any()).Return(ingest.Result{}, errors.New("boom"))
		rr := testutil.DoRequest(s.router, s.routeRequest())
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}

func (s *HandlerSuite) TestAdminRoutesRequireToken() {
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/v1/policies"},
		{http.MethodDelete, "/v1/policies/pol-med"},
		{http.MethodPost, "/v1/devices/keys"},
		{http.MethodDelete, "/v1/devices/dev-1/keys/default"},
		{http.MethodPost, "/v1/queue/drain"},
		{http.MethodDelete, "/v1/queue"},
	} {
		s.Run(tc.method+" "+tc.path, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), tc.method, tc.path))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func (s *HandlerSuite) adminRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = testutil.NewRequest(s.T(), method, path)
	} else {
		req = testutil.NewRequestWithBody(s.T(), method, path, body)
	}
	req.Header.Set("X-Admin-Token", adminToken)
	return req
}

func (s *HandlerSuite) TestPolicies() {
	s.Run("upsert", func() {
		s.admin.EXPECT().UpsertPolicy(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p domain.Policy) (domain.Policy, error) {
				s.Equal("pol-med", p.ID)
				s.Equal(domain.DomainMedical, p.MatchDomain)
				s.True(p.StoreInTimeseries)
				return p, nil
			})
		body := `{"policy_id":"pol-med","name":"medical relay","match_domain":"medical","target_endpoint":"https://relay.example.net/ingest"}`
		out := s.do(s.adminRequest(http.MethodPost, "/v1/policies", body))
		s.Equal(float64(http.StatusOK), out["_status"])
		s.Equal("pol-med", out["policy_id"])
		s.Equal("medical", out["match_domain"])
	})

	s.Run("upsert rejects bad endpoint", func() {
		body := `{"policy_id":"pol-med","name":"medical relay","target_endpoint":"ftp://relay"}`
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodPost, "/v1/policies", body))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("list empty is array", func() {
		s.admin.EXPECT().Policies(gomock.Any()).Return(nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/policies"))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`[]`, rr.Body.String())
	})

	s.Run("remove missing is 404", func() {
		s.admin.EXPECT().RemovePolicy(gomock.Any(), "pol-none").Return(dErrors.New(dErrors.CodeNotFound, "policy not found"))
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodDelete, "/v1/policies/pol-none", ""))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("remove", func() {
		s.admin.EXPECT().RemovePolicy(gomock.Any(), "pol-med").Return(nil)
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodDelete, "/v1/policies/pol-med", ""))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})
}

func (s *HandlerSuite) TestDeviceKeys() {
	s.Run("register generates secret", func() {
		s.admin.EXPECT().RegisterKey(gomock.Any(), ingest.KeyRegistration{DeviceID: "dev-pump-3", KeyID: "default"}).
			Return(ingest.RegisteredKey{
				Key:             security.NewDeviceKey("dev-pump-3", "default", []byte("generated")),
				GeneratedSecret: "generated",
			}, nil)
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodPost, "/v1/devices/keys", `{"device_id":" dev-pump-3 "}`))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[KeyResponse](s.T(), rr)
		s.Equal("generated", resp.Secret)
		s.Equal("HS256", resp.Algorithm)
		s.True(resp.Active)
	})

	s.Run("register requires device id", func() {
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodPost, "/v1/devices/keys", `{"key_id":"k1"}`))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("revoke", func() {
		s.admin.EXPECT().RevokeKey(gomock.Any(), "dev-pump-3", "default").Return(nil)
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodDelete, "/v1/devices/dev-pump-3/keys/default", ""))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})
}

func (s *HandlerSuite) TestQueue() {
	s.Run("status", func() {
		s.admin.EXPECT().QueueStatus(gomock.Any()).Return(ingest.QueueStatus{Backend: "postgres", Depth: 12, OpenBreakers: []string{}}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/queue"))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"backend":"postgres","depth":12,"open_breakers":[]}`, rr.Body.String())
	})

	s.Run("drain", func() {
		s.admin.EXPECT().Drain(gomock.Any()).Return(offlinequeue.DrainResult{Attempted: 3, Delivered: 2, Failed: 1, Remaining: 1}, nil)
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodPost, "/v1/queue/drain", ""))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"attempted":3,"delivered":2,"failed":1,"remaining":1}`, rr.Body.String())
	})

	s.Run("clear", func() {
		s.admin.EXPECT().ClearQueue(gomock.Any()).Return(nil)
		rr := testutil.DoRequest(s.router, s.adminRequest(http.MethodDelete, "/v1/queue", ""))
		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})
}

func (s *HandlerSuite) TestMetrics() {
	s.Run("domain snapshot", func() {
		s.domains.EXPECT().Snapshot().Return([]metrics.Counts{{
			Domain: domain.DomainWater, Environment: domain.EnvironmentGround, Total: 3, Routed: 2, Offline: 1,
		}})
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/metrics/domains"))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[DomainMetricsResponse](s.T(), rr)
		s.Require().Len(resp.Domains, 1)
		s.Equal(int64(1), resp.Domains[0].Offline)
	})

	s.Run("prometheus endpoint", func() {
		s.domains.EXPECT().Snapshot().Return(nil)
		testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/metrics/domains"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
		testutil.AssertStatusOK(s.T(), rr)
		s.Contains(rr.Body.String(), "eeia_http_request_duration_seconds")
		s.Contains(rr.Body.String(), `route="/v1/metrics/domains"`)
	})
}
