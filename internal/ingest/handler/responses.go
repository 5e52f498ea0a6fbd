package handler

import (
	"net/http"

	"eeia/internal/domain"
	"eeia/internal/ingest"
	"eeia/internal/routing/metrics"
	"eeia/internal/scoring"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/platform/httputil"
)

// RouteResponse is returned for every admitted packet.
type RouteResponse struct {
	TraceID  string           `json:"trace_id"`
	PacketID string           `json:"packet_id"`
	DeviceID string           `json:"device_id"`
	Queued   bool             `json:"queued"`
	Decision DecisionResponse `json:"decision"`
}

// DecisionResponse mirrors domain.RoutingDecision. Null policy_id and
// target_endpoint mean "no matching policy" and "system default".
type DecisionResponse struct {
	PolicyID             *string         `json:"policy_id"`
	TargetEndpoint       *string         `json:"target_endpoint"`
	StoreInTimeseries    bool            `json:"store_in_timeseries"`
	StoreInObjectStorage bool            `json:"store_in_object_storage"`
	ShouldForward        bool            `json:"should_forward"`
	Reasons              []string        `json:"reasons"`
	StrictAudit          bool            `json:"strict_audit,omitempty"`
	ML                   *scoring.Result `json:"ml,omitempty"`
}

// RejectionResponse is the 401/403 body for packets stopped at the gate.
type RejectionResponse struct {
	Error       string   `json:"error"`
	Description string   `json:"error_description,omitempty"`
	Reason      string   `json:"reason"`
	RiskScore   *float64 `json:"risk_score,omitempty"`
	TraceID     string   `json:"trace_id"`
}

// KeyResponse describes a registered key. Secret is only present when the
// server generated it.
type KeyResponse struct {
	DeviceID  string `json:"device_id"`
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
	Active    bool   `json:"active"`
	Secret    string `json:"secret,omitempty"`
}

type QueueStatusResponse struct {
	Backend      string   `json:"backend"`
	Depth        int      `json:"depth"`
	OpenBreakers []string `json:"open_breakers"`
}

type DomainMetricsResponse struct {
	Domains []metrics.Counts `json:"domains"`
}

func toRouteResponse(pkt domain.Packet, res ingest.Result) RouteResponse {
	d := res.Decision
	out := RouteResponse{
		TraceID:  res.TraceID,
		PacketID: pkt.ID(),
		DeviceID: pkt.DeviceID(),
		Queued:   res.Queued,
		Decision: DecisionResponse{
			StoreInTimeseries:    d.StoreInTimeseries,
			StoreInObjectStorage: d.StoreInObjectStorage,
			ShouldForward:        d.ShouldForward,
			Reasons:              d.Reasons,
			StrictAudit:          res.Entry.StrictAudit,
			ML:                   res.Entry.Risk,
		},
	}
	if out.Decision.Reasons == nil {
		out.Decision.Reasons = []string{}
	}
	if id := d.PolicyID(); id != "" {
		out.Decision.PolicyID = &id
	}
	if d.TargetEndpoint != "" {
		target := d.TargetEndpoint
		out.Decision.TargetEndpoint = &target
	}
	return out
}

func toKeyResponse(reg ingest.RegisteredKey) KeyResponse {
	return KeyResponse{
		DeviceID:  reg.Key.DeviceID,
		KeyID:     reg.Key.KeyID,
		Algorithm: reg.Key.Algorithm,
		Active:    reg.Key.Active,
		Secret:    reg.GeneratedSecret,
	}
}

func writeRejection(w http.ResponseWriter, err error, res ingest.Result) {
	code := dErrors.CodeOf(err)
	body := RejectionResponse{
		Error:       string(code),
		Description: dErrors.MessageOf(err),
		Reason:      res.Entry.Reason,
		TraceID:     res.TraceID,
	}
	if res.Entry.Risk != nil {
		score := res.Entry.Risk.Score
		body.RiskScore = &score
	}
	httputil.WriteJSON(w, dErrors.HTTPStatus(code), body)
}
