package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
)

// EngineVersion tags outcomes and simulation hashes so a rule-semantics
// change invalidates cached simulation results.
const EngineVersion = "1.0.0"

// Result is the verdict of evaluating one policy version against one
// fact snapshot.
type Result string

const (
	// ResultPass means every rule predicate held.
	ResultPass Result = "PASS"

	// ResultBlock means the rule set failed under MANDATORY enforcement.
	ResultBlock Result = "BLOCK"

	// ResultWarn means the rule set failed under OVERRIDABLE or ADVISORY
	// enforcement.
	ResultWarn Result = "WARN"
)

// Outcome is the complete, deterministic product of one evaluation.
type Outcome struct {
	// PolicyVersionID is the evaluated policy version.
	PolicyVersionID string `json:"policy_version_id"`

	// SnapshotID is the evaluated fact snapshot.
	SnapshotID string `json:"snapshot_id"`

	// Result is the verdict.
	Result Result `json:"result"`

	// Rationale is the human-readable explanation, generated from the
	// failing predicates in deterministic order.
	Rationale string `json:"rationale"`

	// IntegrityHash binds version, snapshot, rule logic, and result.
	IntegrityHash string `json:"integrity_hash"`

	// Findings lists every leaf predicate visited, in evaluation order.
	Findings []rules.LeafResult `json:"findings"`

	// EngineVersion is the engine that produced the outcome.
	EngineVersion string `json:"engine_version"`
}

// Engine evaluates policy versions against fact snapshots. It is
// stateless and safe for concurrent use.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an evaluation engine.
func NewEngine() *Engine {
	return &Engine{
		logger: slog.Default().With("component", "evaluate"),
	}
}

// Evaluate applies the version's rule set to the snapshot. It returns a
// SchemaMismatchError when the snapshot's schema version is outside the
// range the rule set declares; partially understood facts never produce
// a verdict.
func (e *Engine) Evaluate(ctx context.Context, version *registry.Version, snapshot *facts.Snapshot) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if version == nil || version.Rules == nil {
		return nil, fmt.Errorf("policy version with rules is required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("fact snapshot is required")
	}

	rs := version.Rules
	if !rs.SupportsSchema(snapshot.SchemaVersion) {
		return nil, &SchemaMismatchError{
			SnapshotSchema: snapshot.SchemaVersion,
			Min:            rs.SchemaMin,
			Max:            rs.SchemaMax,
		}
	}

	held, findings, err := rs.Eval(snapshot.Field)
	if err != nil {
		return nil, err
	}

	result := verdict(held, version.Level)
	rationale := buildRationale(result, version.Level, findings)

	hash, err := IntegrityHash(version.ID, snapshot.ID, rs, result)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("evaluation complete",
		"policy_version_id", version.ID,
		"snapshot_id", snapshot.ID,
		"result", string(result),
	)

	return &Outcome{
		PolicyVersionID: version.ID,
		SnapshotID:      snapshot.ID,
		Result:          result,
		Rationale:       rationale,
		IntegrityHash:   hash,
		Findings:        findings,
		EngineVersion:   EngineVersion,
	}, nil
}

// verdict maps a rule failure through the enforcement level: a failing
// MANDATORY rule set blocks, any other failing level warns.
func verdict(held bool, level registry.EnforcementLevel) Result {
	if held {
		return ResultPass
	}
	if level == registry.LevelMandatory {
		return ResultBlock
	}
	return ResultWarn
}

// buildRationale renders the verdict explanation. Failing predicates are
// listed in evaluation order so the text is stable across replays.
func buildRationale(result Result, level registry.EnforcementLevel, findings []rules.LeafResult) string {
	if result == ResultPass {
		return "All rule predicates held."
	}

	var lines []string
	for _, f := range findings {
		if f.Held {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] predicate failed: %s %s %v (actual: %v)",
			level, f.Field, f.Operator, f.Expected, f.Actual))
	}

	// A NOT tree can fail with every leaf individually holding.
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("- [%s] rule combination not satisfied", level))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluation result: %s. Issues found:\n", result)
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
