// Package scoring defines the risk-scoring contract consulted by the entry gate
// and a deterministic heuristic baseline.
package scoring

import (
	"context"
	"fmt"

	"eeia/internal/domain"
)

//go:generate mockgen -source=scoring.go -destination=mocks/mocks.go -package=mocks Scorer

// Labels assigned by the heuristic scorer.
const (
	LabelLow    = "low"
	LabelMedium = "medium"
	LabelHigh   = "high"
)

// Result is a risk assessment. Score is in [0,1].
type Result struct {
	Score   float64  `json:"score"`
	Label   string   `json:"label"`
	Reasons []string `json:"reasons"`
}

// Scorer attaches a risk score to a packet.
type Scorer interface {
	Score(ctx context.Context, pkt domain.Packet) (Result, error)
}

const largePayloadBytes = 1_000_000

var domainWeights = map[domain.Domain]float64{
	domain.DomainBody:        0.4,
	domain.DomainMedical:     0.3,
	domain.DomainWater:       0.2,
	domain.DomainTransport:   0.2,
	domain.DomainAgriculture: 0.1,
}

var priorityWeights = map[domain.Priority]float64{
	domain.PriorityCritical: 0.5,
	domain.PriorityHigh:     0.3,
	domain.PriorityNormal:   0.1,
}

// Heuristic scores by sector sensitivity, priority and payload size. It is a
// placeholder for a real model and never returns an error.
type Heuristic struct{}

// NewHeuristic returns the baseline scorer.
func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Score(_ context.Context, pkt domain.Packet) (Result, error) {
	var score float64
	var reasons []string

	if w, ok := domainWeights[pkt.Domain()]; ok {
		score += w
		reasons = append(reasons, fmt.Sprintf("domain:%s", pkt.Domain()))
	}
	if w, ok := priorityWeights[pkt.Priority()]; ok {
		score += w
		reasons = append(reasons, fmt.Sprintf("priority:%s", pkt.Priority()))
	}
	if pkt.SizeBytes() > largePayloadBytes {
		score += 0.2
		reasons = append(reasons, "size:>1MB")
	}

	score = min(max(score, 0), 1)
	label := Label(score)
	reasons = append(reasons, "label:"+label)
	return Result{Score: score, Label: label, Reasons: reasons}, nil
}

// Label buckets a score: high from 0.7, medium from 0.4.
func Label(score float64) string {
	switch {
	case score >= 0.7:
		return LabelHigh
	case score >= 0.4:
		return LabelMedium
	default:
		return LabelLow
	}
}
