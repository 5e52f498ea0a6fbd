package security

import (
	"context"
	"fmt"
	"log/slog"

	"eeia/internal/domain"
	"eeia/internal/scoring"
	dErrors "eeia/pkg/domain-errors"
	"eeia/pkg/requestcontext"
)

// Gate rejection reasons beyond the verification ones.
const (
	ReasonMissingSignature = "missing_signature"
	ReasonRiskBlock        = "ml_risk_block"
	ReasonScoringFailed    = "risk_scoring_failed"
)

// Default score thresholds.
const (
	DefaultBlockThreshold = 0.9
	DefaultAuditThreshold = 0.7
)

// EntryResult is the gate's verdict for one packet.
type EntryResult struct {
	OK          bool
	Reason      string
	Blocked     bool
	StrictAudit bool
	// Risk is nil when no scorer is configured or scoring was not reached.
	Risk *scoring.Result
}

// Err converts a rejection into a domain error: authentication failures are
// unauthorized, risk decisions forbidden.
func (r EntryResult) Err() error {
	if r.OK {
		return nil
	}
	switch r.Reason {
	case ReasonRiskBlock:
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("%s (score %.2f)", r.Reason, r.score()))
	case ReasonScoringFailed:
		return dErrors.New(dErrors.CodeForbidden, r.Reason)
	default:
		return dErrors.New(dErrors.CodeUnauthorized, r.Reason)
	}
}

func (r EntryResult) score() float64 {
	if r.Risk == nil {
		return 0
	}
	return r.Risk.Score
}

// Gate is the single authorization checkpoint before routing. It composes key
// lookup, signature verification and optional risk scoring.
type Gate struct {
	keys             KeyRegistry
	scorer           scoring.Scorer
	requireSignature bool
	blockThreshold   float64
	auditThreshold   float64
	logger           *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithScorer enables risk scoring. A nil scorer disables it.
func WithScorer(s scoring.Scorer) GateOption {
	return func(g *Gate) { g.scorer = s }
}

// WithRequireSignature rejects packets that arrive without a signature.
func WithRequireSignature(required bool) GateOption {
	return func(g *Gate) { g.requireSignature = required }
}

// WithThresholds overrides the block and strict-audit score thresholds.
func WithThresholds(block, audit float64) GateOption {
	return func(g *Gate) {
		g.blockThreshold = block
		g.auditThreshold = audit
	}
}

func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a gate over keys.
func NewGate(keys KeyRegistry, opts ...GateOption) (*Gate, error) {
	if keys == nil {
		return nil, fmt.Errorf("key registry is required")
	}
	g := &Gate{
		keys:           keys,
		blockThreshold: DefaultBlockThreshold,
		auditThreshold: DefaultAuditThreshold,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.auditThreshold > g.blockThreshold {
		return nil, fmt.Errorf("audit threshold %.2f exceeds block threshold %.2f", g.auditThreshold, g.blockThreshold)
	}
	return g, nil
}

// ValidatePacketEntry decides whether pkt may enter routing.
//
// The device key must exist and be active. A supplied signature is always
// verified; a missing one is accepted unless signatures are required. When a
// scorer is configured, scores at or above the block threshold reject the
// packet and scores at or above the audit threshold flag it for strict audit.
// Scorer failures reject the packet.
func (g *Gate) ValidatePacketEntry(ctx context.Context, pkt domain.Packet, keyID, signature string) EntryResult {
	key, ok := g.keys.Lookup(pkt.DeviceID(), keyID)
	if !ok {
		return EntryResult{Reason: ReasonUnknownDeviceOrKey, Blocked: true}
	}

	if signature == "" {
		if g.requireSignature {
			return EntryResult{Reason: ReasonMissingSignature, Blocked: true}
		}
	} else if res := verifyWithKey(pkt, signature, key); !res.OK {
		return EntryResult{Reason: res.Reason, Blocked: true}
	}

	if g.scorer == nil {
		return EntryResult{OK: true}
	}

	risk, err := g.scorer.Score(ctx, pkt)
	if err != nil {
		g.logger.WarnContext(ctx, "risk scoring failed",
			"request_id", requestcontext.RequestID(ctx),
			"packet_id", pkt.ID(),
			"device_id", pkt.DeviceID(),
			"error", err,
		)
		return EntryResult{Reason: ReasonScoringFailed, Blocked: true}
	}

	result := EntryResult{
		OK:          true,
		StrictAudit: risk.Score >= g.auditThreshold,
		Risk:        &risk,
	}
	if risk.Score >= g.blockThreshold {
		result.OK = false
		result.Blocked = true
		result.Reason = ReasonRiskBlock
	}
	return result
}
