package simulate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
)

// Config bounds simulation runs.
type Config struct {
	// MaxSampleSize caps how many snapshots one run may replay.
	MaxSampleSize int

	// ImpactedCap caps the detailed impacted-subject list.
	ImpactedCap int

	// FrictionThresholdPct is the fail-rate-change percentage above
	// which a draft is flagged HIGH friction.
	FrictionThresholdPct float64
}

// DefaultConfig returns the default simulation bounds.
func DefaultConfig() Config {
	return Config{
		MaxSampleSize:        500,
		ImpactedCap:          50,
		FrictionThresholdPct: 10.0,
	}
}

// Engine runs draft rule sets against historical snapshots. Runs are
// asynchronous; Simulate returns as soon as the run is registered.
type Engine struct {
	store     Store
	snapshots facts.Store
	decisions ledger.Store
	registry  *registry.Registry
	eval      *evaluate.Engine
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a simulation engine.
func NewEngine(store Store, snapshots facts.Store, decisions ledger.Store, reg *registry.Registry, eval *evaluate.Engine, config Config) *Engine {
	if config.MaxSampleSize <= 0 {
		config = DefaultConfig()
	}
	return &Engine{
		store:     store,
		snapshots: snapshots,
		decisions: decisions,
		registry:  reg,
		eval:      eval,
		config:    config,
		logger:    slog.Default().With("component", "simulate"),
		now:       time.Now,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Simulate registers and starts a run of draftRules for a policy,
// returning the simulation record immediately. An identical completed
// run (same canonical rules, same snapshot sample, same engine version)
// is returned from cache instead of recomputing.
func (e *Engine) Simulate(ctx context.Context, policyID string, draftRules *rules.RuleSet, strategy Strategy, sampleSize int, createdBy string) (*Simulation, error) {
	if policyID == "" {
		return nil, &ValidationError{Reason: "policy id is required"}
	}
	if draftRules == nil {
		return nil, &ValidationError{Reason: "draft rules are required"}
	}
	if err := draftRules.Validate(); err != nil {
		return nil, err
	}
	if !strategy.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown sampling strategy %q", strategy)}
	}
	if sampleSize <= 0 {
		return nil, &ValidationError{Reason: "sample size must be positive"}
	}
	if sampleSize > e.config.MaxSampleSize {
		return nil, &SampleTooLargeError{Requested: sampleSize, Cap: e.config.MaxSampleSize}
	}

	sampled, err := e.collect(ctx, strategy, sampleSize)
	if err != nil {
		return nil, err
	}
	if len(sampled) == 0 {
		return nil, &ValidationError{Reason: "no historical snapshots available for simulation"}
	}

	ids := make([]string, len(sampled))
	for i, s := range sampled {
		ids[i] = s.ID
	}
	sort.Strings(ids)

	hash, err := simulationHash(draftRules, ids)
	if err != nil {
		return nil, err
	}

	if cached, err := e.store.CompletedByHash(ctx, hash); err == nil {
		e.logger.Info("simulation served from cache",
			"simulation_id", cached.ID,
			"hash", hash,
		)
		return cached, nil
	} else if _, ok := err.(*NotFoundError); !ok {
		return nil, err
	}

	sim := &Simulation{
		ID:            uuid.New().String(),
		PolicyID:      policyID,
		Hash:          hash,
		DraftRules:    draftRules,
		EngineVersion: evaluate.EngineVersion,
		Strategy:      strategy,
		SampleSize:    len(sampled),
		SnapshotIDs:   ids,
		Status:        StatusPending,
		CreatedBy:     createdBy,
		CreatedAt:     e.now(),
	}

	if err := e.store.PutSimulation(ctx, sim); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[sim.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(runCtx, sim.ID, sampled)

	e.logger.Info("simulation started",
		"simulation_id", sim.ID,
		"policy_id", policyID,
		"strategy", string(strategy),
		"sample_size", len(sampled),
	)

	return sim, nil
}

// GetResult returns the simulation record, whatever its status.
func (e *Engine) GetResult(ctx context.Context, id string) (*Simulation, error) {
	return e.store.GetSimulation(ctx, id)
}

// Cancel aborts a run in flight. Terminal simulations cannot be
// cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		sim, err := e.store.GetSimulation(ctx, id)
		if err != nil {
			return err
		}
		return &InvalidStateError{ID: id, Status: sim.Status, Operation: "cancel"}
	}
	cancel()
	return nil
}

// Wait blocks until every run in flight finishes. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Promote creates the next version of the simulated policy from a
// COMPLETED run, via the registry's strict N+1 path.
func (e *Engine) Promote(ctx context.Context, simulationID string, level registry.EnforcementLevel, createdBy string) (*registry.Version, error) {
	sim, err := e.store.GetSimulation(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	if sim.Status != StatusCompleted {
		return nil, &InvalidStateError{ID: simulationID, Status: sim.Status, Operation: "promote"}
	}

	if sim.Results != nil && sim.Results.Summary.Friction == FrictionHigh {
		e.logger.Warn("promoting high-friction policy change",
			"simulation_id", simulationID,
			"fail_rate_change_pct", sim.Results.Summary.FailRateChangePct,
		)
	}

	next, err := e.registry.NextVersionNumber(ctx, sim.PolicyID)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("promoted from simulation %s", simulationID)
	return e.registry.CreateVersion(ctx, sim.PolicyID, next, level, sim.DraftRules, createdBy, note)
}

// run executes the replay loop. Any single snapshot failure marks the
// whole run FAILED with the failing snapshot recorded; partial results
// are never reported as complete.
func (e *Engine) run(ctx context.Context, id string, sampled []*facts.Snapshot) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
	}()

	sim, err := e.store.GetSimulation(ctx, id)
	if err != nil {
		e.logger.Error("simulation vanished before running", "simulation_id", id, "error", err)
		return
	}

	sim.Status = StatusRunning
	if err := e.store.UpdateSimulation(ctx, sim); err != nil {
		e.logger.Error("failed to mark simulation running", "simulation_id", id, "error", err)
		return
	}

	draftVersion := &registry.Version{
		ID:       "DRAFT",
		PolicyID: sim.PolicyID,
		Level:    registry.LevelMandatory,
		Rules:    sim.DraftRules,
	}

	var (
		newlyBlocked int
		newlyPassed  int
		consistent   int
		draftBlocked int
		draftPassed  int
		impacted     []*Impacted
	)

	for _, snap := range sampled {
		if ctx.Err() != nil {
			e.fail(sim, "", "cancelled")
			return
		}

		outcome, err := e.eval.Evaluate(ctx, draftVersion, snap)
		if err != nil {
			e.fail(sim, snap.ID, err.Error())
			return
		}

		switch outcome.Result {
		case evaluate.ResultBlock:
			draftBlocked++
		case evaluate.ResultPass:
			draftPassed++
		}

		historical := "UNKNOWN"
		if d, err := e.decisions.LatestDecisionForSnapshot(ctx, snap.ID); err == nil {
			historical = string(d.Result)
		} else if _, ok := err.(*ledger.NotFoundError); !ok {
			e.fail(sim, snap.ID, err.Error())
			return
		}

		switch {
		case historical == string(evaluate.ResultPass) && outcome.Result == evaluate.ResultBlock:
			newlyBlocked++
			impacted = append(impacted, &Impacted{
				Repo:         snap.Repo,
				ChangeNumber: snap.ChangeNumber,
				Change:       "PASS -> BLOCK",
				Rationale:    outcome.Rationale,
			})
		case historical == string(evaluate.ResultBlock) && outcome.Result == evaluate.ResultPass:
			newlyPassed++
			impacted = append(impacted, &Impacted{
				Repo:         snap.Repo,
				ChangeNumber: snap.ChangeNumber,
				Change:       "BLOCK -> PASS",
				Rationale:    outcome.Rationale,
			})
		default:
			consistent++
		}
	}

	total := len(sampled)
	failRateChange := float64(newlyBlocked-newlyPassed) / float64(total) * 100

	friction := FrictionLow
	if failRateChange > e.config.FrictionThresholdPct {
		friction = FrictionHigh
	}

	if len(impacted) > e.config.ImpactedCap {
		impacted = impacted[:e.config.ImpactedCap]
	}

	sim.Results = &Results{
		Summary: Summary{
			TotalSnapshots:        total,
			ConsistentCount:       consistent,
			NewlyBlockedCount:     newlyBlocked,
			NewlyPassedCount:      newlyPassed,
			FailRateChangePct:     failRateChange,
			ProjectedBlockRatePct: float64(draftBlocked) / float64(total) * 100,
			ProjectedPassRatePct:  float64(draftPassed) / float64(total) * 100,
			Friction:              friction,
		},
		Impacted: impacted,
	}
	sim.Status = StatusCompleted
	at := e.now()
	sim.CompletedAt = &at

	// Terminal writes use a fresh context so a cancellation racing the
	// last snapshot cannot lose a finished report.
	if err := e.store.UpdateSimulation(context.Background(), sim); err != nil {
		e.logger.Error("failed to persist simulation results", "simulation_id", sim.ID, "error", err)
		return
	}

	e.logger.Info("simulation completed",
		"simulation_id", sim.ID,
		"newly_blocked", newlyBlocked,
		"newly_passed", newlyPassed,
		"friction", string(friction),
	)
}

// fail marks the run FAILED. The terminal write uses a fresh context so
// a cancelled run still records its fate.
func (e *Engine) fail(sim *Simulation, snapshotID, reason string) {
	sim.Status = StatusFailed
	sim.FailedSnapshotID = snapshotID
	sim.FailureReason = reason
	at := e.now()
	sim.CompletedAt = &at

	if err := e.store.UpdateSimulation(context.Background(), sim); err != nil {
		e.logger.Error("failed to persist simulation failure", "simulation_id", sim.ID, "error", err)
		return
	}

	e.logger.Warn("simulation failed",
		"simulation_id", sim.ID,
		"failed_snapshot_id", snapshotID,
		"reason", reason,
	)
}

// collect samples snapshots per the strategy.
func (e *Engine) collect(ctx context.Context, strategy Strategy, size int) ([]*facts.Snapshot, error) {
	switch strategy {
	case StrategyTimeBased:
		return e.snapshots.RecentSnapshots(ctx, size)
	case StrategyRepoBased:
		return e.snapshots.SnapshotsByRepo(ctx, size)
	case StrategyRiskBased:
		return e.snapshots.RiskySnapshots(ctx, size)
	}
	return nil, &ValidationError{Reason: fmt.Sprintf("unknown sampling strategy %q", strategy)}
}

// simulationHash digests the canonical draft rules, the sorted snapshot
// sample, and the engine version. Identical inputs always collide,
// which is exactly the dedup property wanted.
func simulationHash(draftRules *rules.RuleSet, sortedIDs []string) (string, error) {
	canonical, err := rules.CanonicalJSON(map[string]interface{}{
		"rules":     draftRules,
		"snapshots": sortedIDs,
		"engine":    evaluate.EngineVersion,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
