package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"provost-hq/provost/pkg/govmetrics"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := NewSQLite(SQLiteConfig{DBPath: path, BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteApplyAccumulates(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	applied, err := s.Apply(ctx, "decision:d1", "pol-1", "ver-1", govmetrics.Delta{Evaluations: 1, Blocks: 1})
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = s.Apply(ctx, "decision:d2", "pol-1", "ver-1", govmetrics.Delta{Evaluations: 1, Overrides: 1})
	if err != nil || !applied {
		t.Fatalf("second apply: applied=%v err=%v", applied, err)
	}

	m, err := s.Metric(ctx, "pol-1", "ver-1")
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.TotalEvaluations != 2 || m.TotalBlocks != 1 || m.TotalOverrides != 1 {
		t.Fatalf("unexpected counters: %+v", m)
	}
}

func TestSQLiteApplyDedupSurvivesReopen(t *testing.T) {
	s, path := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Apply(ctx, "decision:d1", "pol-1", "ver-1", govmetrics.Delta{Evaluations: 1}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLite(SQLiteConfig{DBPath: path, BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	applied, err := reopened.Apply(ctx, "decision:d1", "pol-1", "ver-1", govmetrics.Delta{Evaluations: 1})
	if err != nil {
		t.Fatalf("replay apply: %v", err)
	}
	if applied {
		t.Fatal("dedup ledger did not survive reopen")
	}

	m, err := reopened.Metric(ctx, "pol-1", "ver-1")
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.TotalEvaluations != 1 {
		t.Fatalf("replayed event double-counted after reopen: %+v", m)
	}
}

func TestSQLiteZeroMetricForUnknownPair(t *testing.T) {
	s, _ := newTestSQLite(t)

	m, err := s.Metric(context.Background(), "pol-x", "ver-x")
	if err != nil {
		t.Fatalf("Metric: %v", err)
	}
	if m.TotalEvaluations != 0 || m.PolicyID != "pol-x" {
		t.Fatalf("expected zero row, got %+v", m)
	}
}

func TestSQLiteSignalsRoundTrip(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	first := &govmetrics.Signal{
		ID:        "sig-1",
		Type:      govmetrics.SignalBypassVelocity,
		TargetID:  "acme/widgets",
		Level:     govmetrics.LevelAttention,
		Metadata:  map[string]interface{}{"bypass_velocity": 0.08},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	second := &govmetrics.Signal{
		ID:        "sig-2",
		Type:      govmetrics.SignalComplianceGap,
		TargetID:  "acme/widgets",
		Level:     govmetrics.LevelAnomaly,
		Metadata:  map[string]interface{}{"block_rate": 0.8},
		CreatedAt: time.Now().UTC(),
	}
	for _, sig := range []*govmetrics.Signal{first, second} {
		if err := s.PutSignal(ctx, sig); err != nil {
			t.Fatalf("PutSignal(%s): %v", sig.ID, err)
		}
	}

	got, err := s.SignalsForTarget(ctx, "acme/widgets", 10)
	if err != nil {
		t.Fatalf("SignalsForTarget: %v", err)
	}
	if len(got) != 2 || got[0].ID != "sig-2" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Metadata["block_rate"] != 0.8 {
		t.Fatalf("metadata did not round trip: %+v", got[0].Metadata)
	}
}
