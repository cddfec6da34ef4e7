// Package telemetry derives the per-session timing and cost record handed
// to the artifact sink after a refund decision.
package telemetry

import "time"

// CostRates prices the components of a completed session. Voice transport
// is billed per minute; the transaction fee and storage cost are flat.
type CostRates struct {
	VoicePerMinute     float64
	TransactionFee     float64
	StoragePerArtifact float64
}

// DefaultRates approximate a hosted voice pipeline plus artifact storage.
var DefaultRates = CostRates{
	VoicePerMinute:     0.08,
	TransactionFee:     0.25,
	StoragePerArtifact: 0.002,
}

// Timeline records the session milestones metrics are computed from.
// AuthAt is when both identity slots (email and last4) were captured;
// DecidedAt is when the refund decision ran. Zero times mean the milestone
// was never reached.
type Timeline struct {
	StartedAt time.Time
	AuthAt    time.Time
	DecidedAt time.Time
	EndedAt   time.Time
}

// CostBreakdown itemises the session cost.
type CostBreakdown struct {
	Voice       float64 `json:"voice"`
	Transaction float64 `json:"transaction"`
	Storage     float64 `json:"storage"`
	Total       float64 `json:"total"`
}

// Metrics is the plain-data metrics record. All durations are seconds.
type Metrics struct {
	TotalSeconds          float64       `json:"total_seconds"`
	TimeToAuthSeconds     float64       `json:"time_to_auth_seconds"`
	TimeToDecisionSeconds float64       `json:"time_to_decision_seconds"`
	Cost                  CostBreakdown `json:"cost"`
}

// Compute derives the metrics record for a session timeline. Milestones that
// were never reached report zero. artifactCount is the number of artifacts
// the sink will persist for this session.
func Compute(tl Timeline, rates CostRates, artifactCount int) Metrics {
	end := tl.EndedAt
	if end.IsZero() {
		end = tl.DecidedAt
	}

	var m Metrics
	if !tl.StartedAt.IsZero() && end.After(tl.StartedAt) {
		m.TotalSeconds = end.Sub(tl.StartedAt).Seconds()
	}
	if !tl.StartedAt.IsZero() && tl.AuthAt.After(tl.StartedAt) {
		m.TimeToAuthSeconds = tl.AuthAt.Sub(tl.StartedAt).Seconds()
	}
	if !tl.StartedAt.IsZero() && tl.DecidedAt.After(tl.StartedAt) {
		m.TimeToDecisionSeconds = tl.DecidedAt.Sub(tl.StartedAt).Seconds()
	}

	m.Cost.Voice = rates.VoicePerMinute * m.TotalSeconds / 60
	m.Cost.Transaction = rates.TransactionFee
	if artifactCount > 0 {
		m.Cost.Storage = rates.StoragePerArtifact * float64(artifactCount)
	}
	m.Cost.Total = m.Cost.Voice + m.Cost.Transaction + m.Cost.Storage

	return m
}
