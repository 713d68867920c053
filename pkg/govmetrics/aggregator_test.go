package govmetrics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/govmetrics"
	"provost-hq/provost/pkg/govmetrics/storage"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
	"provost-hq/provost/pkg/store"
)

type fixture struct {
	agg     *govmetrics.Aggregator
	backend *storage.Memory
	policy  *registry.Policy
	version *registry.Version
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(store.NewMemory())

	p, err := reg.CreatePolicy(ctx, "pr-size", registry.ScopeRepo, "acme/widgets", "lead")
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	v, err := reg.CreateVersion(ctx, p.ID, 1, registry.LevelMandatory, &rules.RuleSet{
		SchemaMin: 1, SchemaMax: 1,
		Root: &rules.Node{Field: "changes.total_files", Operator: rules.OpLessThan, Value: 50},
	}, "alice", "initial")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	backend := storage.NewMemory()
	return &fixture{
		agg:     govmetrics.NewAggregator(backend, reg, nil),
		backend: backend,
		policy:  p,
		version: v,
	}
}

func (f *fixture) decision(id string, result evaluate.Result, overrideID string) *ledger.Decision {
	at := time.Now()
	return &ledger.Decision{
		ID:              id,
		Subject:         ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/widgets#1"},
		PolicyVersionID: f.version.ID,
		SnapshotID:      "snap-1",
		Result:          result,
		IntegrityHash:   "h",
		EngineVersion:   evaluate.EngineVersion,
		OverrideID:      overrideID,
		Status:          ledger.StatusFinal,
		CreatedAt:       at,
		FinalizedAt:     &at,
	}
}

func TestAggregatorCountsDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events := []*ledger.Decision{
		f.decision("d1", evaluate.ResultPass, ""),
		f.decision("d2", evaluate.ResultBlock, ""),
		f.decision("d3", evaluate.ResultPass, "ovr-1"),
	}
	for _, d := range events {
		if err := f.agg.OnDecisionFinalized(ctx, d); err != nil {
			t.Fatalf("OnDecisionFinalized(%s): %v", d.ID, err)
		}
	}

	m, err := f.agg.Metric(ctx, f.policy.ID, f.version.ID)
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.TotalEvaluations != 3 || m.TotalBlocks != 1 || m.TotalOverrides != 1 {
		t.Fatalf("unexpected counters: %+v", m)
	}
}

func TestAggregatorIdempotentUnderReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.decision("d1", evaluate.ResultBlock, "")
	for i := 0; i < 5; i++ {
		if err := f.agg.OnDecisionFinalized(ctx, d); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	m, err := f.agg.Metric(ctx, f.policy.ID, f.version.ID)
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.TotalEvaluations != 1 || m.TotalBlocks != 1 {
		t.Fatalf("replayed event double-counted: %+v", m)
	}
}

func TestAggregatorRejectsNonFinalDecision(t *testing.T) {
	f := newFixture(t)

	d := f.decision("d1", evaluate.ResultPass, "")
	d.Status = ledger.StatusPending
	err := f.agg.OnDecisionFinalized(context.Background(), d)
	if _, ok := err.(*govmetrics.InvalidEventError); !ok {
		t.Fatalf("expected *InvalidEventError, got %v", err)
	}
}

func TestAggregatorCountsChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := &override.Override{
		ID:              "ovr-1",
		Subject:         ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/widgets#1"},
		PolicyVersionID: f.version.ID,
		Category:        override.CategoryEmergencyHotfix,
		Status:          override.StatusRejected,
	}
	if err := f.agg.OnOverrideResolved(ctx, o); err != nil {
		t.Fatalf("OnOverrideResolved: %v", err)
	}
	// Replay is a no-op.
	if err := f.agg.OnOverrideResolved(ctx, o); err != nil {
		t.Fatalf("replay: %v", err)
	}

	m, err := f.agg.Metric(ctx, f.policy.ID, f.version.ID)
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.ChallengeCount != 1 {
		t.Fatalf("expected 1 challenge, got %d", m.ChallengeCount)
	}

	pending := &override.Override{ID: "ovr-2", PolicyVersionID: f.version.ID, Status: override.StatusPending}
	err = f.agg.OnOverrideResolved(ctx, pending)
	if _, ok := err.(*govmetrics.InvalidEventError); !ok {
		t.Fatalf("expected *InvalidEventError for pending override, got %v", err)
	}
}

func TestDeriveSignalsThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 10 decisions: 6 blocks, 2 overridden. Bypass 20% (ANOMALY),
	// block rate 60% (ATTENTION), no challenges.
	for i := 0; i < 10; i++ {
		result := evaluate.ResultPass
		if i < 6 {
			result = evaluate.ResultBlock
		}
		overrideID := ""
		if i < 2 {
			overrideID = fmt.Sprintf("ovr-%d", i)
		}
		if err := f.agg.OnDecisionFinalized(ctx, f.decision(fmt.Sprintf("d%d", i), result, overrideID)); err != nil {
			t.Fatalf("OnDecisionFinalized: %v", err)
		}
	}

	signals, err := f.agg.DeriveSignals(ctx, f.policy.ID, "acme/widgets")
	if err != nil {
		t.Fatalf("DeriveSignals: %v", err)
	}

	byType := make(map[govmetrics.SignalType]govmetrics.SignalLevel)
	for _, s := range signals {
		byType[s.Type] = s.Level
	}
	if byType[govmetrics.SignalBypassVelocity] != govmetrics.LevelAnomaly {
		t.Fatalf("expected bypass ANOMALY, got %v", byType)
	}
	if byType[govmetrics.SignalComplianceGap] != govmetrics.LevelAttention {
		t.Fatalf("expected gap ATTENTION, got %v", byType)
	}
	if _, ok := byType[govmetrics.SignalPolicyDrift]; ok {
		t.Fatal("drift signal fired without challenges")
	}

	stored, err := f.backend.SignalsForTarget(ctx, "acme/widgets", 10)
	if err != nil {
		t.Fatalf("SignalsForTarget: %v", err)
	}
	if len(stored) != len(signals) {
		t.Fatalf("expected %d stored signals, got %d", len(signals), len(stored))
	}
}

func TestTrustReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 4 decisions, 1 overridden: trust 0.75, velocity 0.25.
	for i := 0; i < 4; i++ {
		overrideID := ""
		if i == 0 {
			overrideID = "ovr-1"
		}
		if err := f.agg.OnDecisionFinalized(ctx, f.decision(fmt.Sprintf("d%d", i), evaluate.ResultPass, overrideID)); err != nil {
			t.Fatalf("OnDecisionFinalized: %v", err)
		}
	}

	report, err := f.agg.TrustReport(ctx, f.policy.ID)
	if err != nil {
		t.Fatalf("TrustReport: %v", err)
	}
	if report.TrustScore != 0.75 || report.BypassVelocity != 0.25 {
		t.Fatalf("unexpected report: %+v", report)
	}

	empty, err := f.agg.TrustReport(ctx, "missing")
	if err != nil {
		t.Fatalf("TrustReport empty: %v", err)
	}
	if empty.TrustScore != 1.0 || empty.TotalDecisions != 0 {
		t.Fatalf("expected pristine trust for empty policy, got %+v", empty)
	}
}
