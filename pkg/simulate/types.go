package simulate

import (
	"context"
	"time"

	"provost-hq/provost/pkg/rules"
)

// Status is the lifecycle state of a simulation run.
type Status string

const (
	// StatusPending marks a created but not yet started run.
	StatusPending Status = "PENDING"

	// StatusRunning marks a run in progress.
	StatusRunning Status = "RUNNING"

	// StatusCompleted marks a run with results available.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed marks a run that aborted; FailedSnapshotID or
	// FailureReason explains why.
	StatusFailed Status = "FAILED"
)

// Strategy selects which historical snapshots a simulation replays.
type Strategy string

const (
	// StrategyTimeBased samples the most recent snapshots.
	StrategyTimeBased Strategy = "TIME_BASED"

	// StrategyRepoBased samples stratified across distinct
	// repositories.
	StrategyRepoBased Strategy = "REPO_BASED"

	// StrategyRiskBased samples weighted toward snapshots whose
	// historical decisions were BLOCK or carried overrides.
	StrategyRiskBased Strategy = "RISK_BASED"
)

// Valid reports whether the strategy is a known variant.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyTimeBased, StrategyRepoBased, StrategyRiskBased:
		return true
	}
	return false
}

// FrictionIndex summarizes how disruptive a draft would be.
type FrictionIndex string

const (
	FrictionLow  FrictionIndex = "LOW"
	FrictionHigh FrictionIndex = "HIGH"
)

// Summary aggregates one simulation's blast radius.
type Summary struct {
	// TotalSnapshots is how many snapshots were replayed.
	TotalSnapshots int `json:"total_snapshots"`

	// ConsistentCount is how many outcomes matched history.
	ConsistentCount int `json:"consistent_count"`

	// NewlyBlockedCount counts historical PASS outcomes the draft
	// would block.
	NewlyBlockedCount int `json:"newly_blocked_count"`

	// NewlyPassedCount counts historical BLOCK outcomes the draft
	// would pass.
	NewlyPassedCount int `json:"newly_passed_count"`

	// FailRateChangePct is (newly blocked - newly passed) / total, as a
	// percentage.
	FailRateChangePct float64 `json:"fail_rate_change_pct"`

	// ProjectedBlockRatePct is the draft's block rate over the sample.
	ProjectedBlockRatePct float64 `json:"projected_block_rate_pct"`

	// ProjectedPassRatePct is the draft's pass rate over the sample.
	ProjectedPassRatePct float64 `json:"projected_pass_rate_pct"`

	// Friction is HIGH when the fail-rate change exceeds the
	// configured threshold.
	Friction FrictionIndex `json:"friction_index"`
}

// Impacted describes one subject whose outcome the draft would flip.
type Impacted struct {
	// Repo is the snapshot's repository.
	Repo string `json:"repo"`

	// ChangeNumber is the snapshot's change number.
	ChangeNumber int `json:"change_number"`

	// Change describes the flip, e.g. "PASS -> BLOCK".
	Change string `json:"change"`

	// Rationale is the draft evaluation's rationale.
	Rationale string `json:"rationale"`
}

// Results is the full report of a completed simulation.
type Results struct {
	Summary  Summary     `json:"summary"`
	Impacted []*Impacted `json:"impacted"`
}

// Simulation is one replay run of a draft rule set.
type Simulation struct {
	// ID is the simulation identifier (UUID v4).
	ID string `json:"id"`

	// PolicyID is the policy the draft would become a version of.
	PolicyID string `json:"policy_id"`

	// Hash deduplicates identical runs: digest of the canonical draft
	// rules, the sorted sampled snapshot ids, and the engine version.
	Hash string `json:"hash"`

	// DraftRules is the rule set under test.
	DraftRules *rules.RuleSet `json:"draft_rules"`

	// EngineVersion is the engine the run used.
	EngineVersion string `json:"engine_version"`

	// Strategy is the sampling strategy.
	Strategy Strategy `json:"strategy"`

	// SampleSize is how many snapshots were actually sampled.
	SampleSize int `json:"sample_size"`

	// SnapshotIDs lists the sampled snapshots, sorted.
	SnapshotIDs []string `json:"snapshot_ids"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Results is set once COMPLETED.
	Results *Results `json:"results,omitempty"`

	// FailedSnapshotID identifies the snapshot whose evaluation failed
	// a FAILED run.
	FailedSnapshotID string `json:"failed_snapshot_id,omitempty"`

	// FailureReason explains a FAILED run.
	FailureReason string `json:"failure_reason,omitempty"`

	// CreatedBy is the requesting actor.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the run was requested.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store is the persistence interface for simulations.
type Store interface {
	// PutSimulation inserts a new simulation row.
	PutSimulation(ctx context.Context, s *Simulation) error

	// GetSimulation returns a simulation by id.
	GetSimulation(ctx context.Context, id string) (*Simulation, error)

	// UpdateSimulation replaces a simulation row.
	UpdateSimulation(ctx context.Context, s *Simulation) error

	// CompletedByHash returns the COMPLETED simulation with the given
	// hash, or a NotFoundError when none exists.
	CompletedByHash(ctx context.Context, hash string) (*Simulation, error)
}
