package govmetrics

import (
	"context"
	"time"
)

// Metric is the running counter row for one (policy, version) pair.
// Eventually consistent and rebuildable from history.
type Metric struct {
	PolicyID  string `json:"policy_id"`
	VersionID string `json:"version_id"`

	// TotalEvaluations counts finalized decisions against the version.
	TotalEvaluations int `json:"total_evaluations"`

	// TotalBlocks counts finalized BLOCK decisions.
	TotalBlocks int `json:"total_blocks"`

	// TotalOverrides counts finalized decisions carrying an override.
	TotalOverrides int `json:"total_overrides"`

	// ChallengeCount counts overrides requested against the version,
	// whatever their eventual fate.
	ChallengeCount int `json:"challenge_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Delta is one idempotent increment against a metric row.
type Delta struct {
	Evaluations int
	Blocks      int
	Overrides   int
	Challenges  int
}

// SignalType classifies a derived governance signal.
type SignalType string

const (
	// SignalBypassVelocity fires when overrides bypass a policy at an
	// unusual rate.
	SignalBypassVelocity SignalType = "BYPASS_VELOCITY"

	// SignalPolicyDrift fires when a policy version is challenged often
	// enough to suggest its rules no longer match reality.
	SignalPolicyDrift SignalType = "POLICY_DRIFT"

	// SignalComplianceGap fires when a policy blocks a large share of
	// evaluated changes.
	SignalComplianceGap SignalType = "COMPLIANCE_GAP"
)

// SignalLevel grades a signal's urgency. Signals are advisory only and
// never affect enforcement.
type SignalLevel string

const (
	LevelInfo      SignalLevel = "INFO"
	LevelAttention SignalLevel = "ATTENTION"
	LevelAnomaly   SignalLevel = "ANOMALY"
)

// Signal is one derived governance alert.
type Signal struct {
	ID        string                 `json:"id"`
	Type      SignalType             `json:"type"`
	TargetID  string                 `json:"target_id"`
	Level     SignalLevel            `json:"level"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// TrustReport summarizes governance health for a policy.
type TrustReport struct {
	PolicyID       string  `json:"policy_id"`
	TotalDecisions int     `json:"total_decisions"`
	TotalBlocks    int     `json:"total_blocks"`
	TotalOverrides int     `json:"total_overrides"`
	TrustScore     float64 `json:"trust_score"`
	BypassVelocity float64 `json:"bypass_velocity"`
}

// Store persists derived metrics, the event dedup ledger, and signals.
// Implementations must be safe for concurrent use.
type Store interface {
	// Apply records the event id and applies the delta to the
	// (policyID, versionID) metric row as one atomic operation. It
	// returns false without applying when the event id was already
	// processed, which makes replayed events no-ops.
	Apply(ctx context.Context, eventID, policyID, versionID string, delta Delta) (bool, error)

	// Metric returns the counter row for one (policy, version) pair, or
	// a zero-valued row when nothing has been recorded yet.
	Metric(ctx context.Context, policyID, versionID string) (*Metric, error)

	// MetricsForPolicy returns every version row for a policy.
	MetricsForPolicy(ctx context.Context, policyID string) ([]*Metric, error)

	// PutSignal stores a derived signal.
	PutSignal(ctx context.Context, s *Signal) error

	// SignalsForTarget returns signals for a target, newest first.
	SignalsForTarget(ctx context.Context, targetID string, limit int) ([]*Signal, error)

	// Close releases any resources held by the store.
	Close() error
}
