package store

import (
	"context"
	"testing"
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
)

func putSnapshot(t *testing.T, m *Memory, id, repo string, age time.Duration) {
	t.Helper()
	err := m.PutSnapshot(context.Background(), &facts.Snapshot{
		ID:            id,
		Repo:          repo,
		ChangeNumber:  1,
		Commit:        "sha-" + id,
		SchemaVersion: 1,
		Data:          map[string]interface{}{"schema_version": 1},
		IngestedAt:    time.Now().Add(-age),
	})
	if err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
}

func TestMemoryRecentSnapshots(t *testing.T) {
	m := NewMemory()
	putSnapshot(t, m, "old", "acme/a", 3*time.Hour)
	putSnapshot(t, m, "mid", "acme/a", 2*time.Hour)
	putSnapshot(t, m, "new", "acme/b", time.Hour)

	got, err := m.RecentSnapshots(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentSnapshots: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("unexpected order: %v", ids(got))
	}
}

func TestMemorySnapshotsByRepoStratifies(t *testing.T) {
	m := NewMemory()
	putSnapshot(t, m, "a1", "acme/a", time.Hour)
	putSnapshot(t, m, "a2", "acme/a", 2*time.Hour)
	putSnapshot(t, m, "a3", "acme/a", 3*time.Hour)
	putSnapshot(t, m, "b1", "acme/b", time.Hour)

	got, err := m.SnapshotsByRepo(context.Background(), 3)
	if err != nil {
		t.Fatalf("SnapshotsByRepo: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	// Both repos contribute their newest before acme/a contributes its
	// second.
	if got[0].ID != "a1" || got[1].ID != "b1" || got[2].ID != "a2" {
		t.Fatalf("unexpected stratification: %v", ids(got))
	}
}

func TestMemoryRiskySnapshotsPrioritized(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	putSnapshot(t, m, "clean", "acme/a", time.Hour)
	putSnapshot(t, m, "blocked", "acme/a", 2*time.Hour)

	err := m.PutDecision(ctx, &ledger.Decision{
		ID:            "dec-1",
		Subject:       ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/a#1"},
		SnapshotID:    "blocked",
		Result:        evaluate.ResultBlock,
		IntegrityHash: "h",
		Status:        ledger.StatusFinal,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("PutDecision: %v", err)
	}

	got, err := m.RiskySnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("RiskySnapshots: %v", err)
	}
	if got[0].ID != "blocked" {
		t.Fatalf("expected risky snapshot first, got %v", ids(got))
	}
}

func TestMemorySnapshotCopiesAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	putSnapshot(t, m, "s1", "acme/a", time.Hour)

	got, err := m.GetSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	got.Data["schema_version"] = 99

	again, err := m.GetSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if again.Data["schema_version"] != 1 {
		t.Fatal("stored snapshot mutated through returned copy")
	}
}

func TestMemoryFinalizeCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	d := &ledger.Decision{
		ID:            "dec-1",
		Subject:       ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/a#1"},
		Result:        evaluate.ResultPass,
		IntegrityHash: "h",
		Status:        ledger.StatusPending,
		CreatedAt:     time.Now(),
	}
	if err := m.PutDecision(ctx, d); err != nil {
		t.Fatalf("PutDecision: %v", err)
	}

	won, err := m.FinalizeDecision(ctx, d.ID, time.Now())
	if err != nil || !won {
		t.Fatalf("first finalize: won=%v err=%v", won, err)
	}
	won, err = m.FinalizeDecision(ctx, d.ID, time.Now())
	if err != nil || won {
		t.Fatalf("second finalize: won=%v err=%v", won, err)
	}

	d.Rationale = "tampered"
	err = m.UpdateDecision(ctx, d)
	if _, ok := err.(*ledger.ImmutableRecordError); !ok {
		t.Fatalf("expected *ImmutableRecordError, got %v", err)
	}
}

func TestMemoryAddSignatureAtomicApproval(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	o := &override.Override{
		ID:              "ovr-1",
		Subject:         ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/a#1"},
		PolicyVersionID: "ver-1",
		Category:        override.CategoryEmergencyHotfix,
		Status:          override.StatusPending,
		TTLHours:        4,
		CreatedAt:       time.Now(),
		ExpiresAt:       time.Now().Add(4 * time.Hour),
	}
	if err := m.PutOverride(ctx, o); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}

	twoSigners := func(sigs []*override.Signature) (bool, error) {
		actors := make(map[string]bool)
		for _, s := range sigs {
			actors[s.ActorID] = true
		}
		return len(actors) >= 2, nil
	}

	approved, err := m.AddSignature(ctx, &override.Signature{
		ID: "sig-1", OverrideID: "ovr-1", ActorID: "alice",
		Justification: "needed for the hotfix", SignedAt: time.Now(),
	}, twoSigners)
	if err != nil || approved {
		t.Fatalf("first signature: approved=%v err=%v", approved, err)
	}

	// Same actor cannot sign twice.
	_, err = m.AddSignature(ctx, &override.Signature{
		ID: "sig-2", OverrideID: "ovr-1", ActorID: "alice",
		Justification: "needed for the hotfix", SignedAt: time.Now(),
	}, twoSigners)
	if _, ok := err.(*override.DuplicateSignatureError); !ok {
		t.Fatalf("expected *DuplicateSignatureError, got %v", err)
	}

	approved, err = m.AddSignature(ctx, &override.Signature{
		ID: "sig-3", OverrideID: "ovr-1", ActorID: "bob",
		Justification: "needed for the hotfix", SignedAt: time.Now(),
	}, twoSigners)
	if err != nil || !approved {
		t.Fatalf("second signature: approved=%v err=%v", approved, err)
	}

	got, err := m.GetOverride(ctx, "ovr-1")
	if err != nil {
		t.Fatalf("GetOverride: %v", err)
	}
	if got.Status != override.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}
}

func ids(snaps []*facts.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}
