package enforce

import (
	"testing"
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
)

func blockDecision() *ledger.Decision {
	return &ledger.Decision{
		ID:              "dec-1",
		Subject:         ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/widgets#7"},
		PolicyVersionID: "ver-1",
		SnapshotID:      "snap-1",
		Result:          evaluate.ResultBlock,
		Rationale:       "Evaluation result: BLOCK.",
		IntegrityHash:   "deadbeef",
		EngineVersion:   evaluate.EngineVersion,
		Status:          ledger.StatusFinal,
		CreatedAt:       time.Now(),
	}
}

func approvedOverride() *override.Override {
	return &override.Override{
		ID:              "ovr-1",
		PolicyVersionID: "ver-1",
		Category:        override.CategoryEmergencyHotfix,
		Status:          override.StatusApproved,
	}
}

func TestEffectiveResult(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		decision   *ledger.Decision
		override   *override.Override
		revocation *override.Revocation
		want       evaluate.Result
	}{
		{
			name:     "block stands without override",
			decision: blockDecision(),
			want:     evaluate.ResultBlock,
		},
		{
			name:     "approved override neutralizes block",
			decision: blockDecision(),
			override: approvedOverride(),
			want:     evaluate.ResultPass,
		},
		{
			name:       "revoked override is inert",
			decision:   blockDecision(),
			override:   approvedOverride(),
			revocation: &override.Revocation{ID: "rev-1", OverrideID: "ovr-1", ActorID: "carol"},
			want:       evaluate.ResultBlock,
		},
		{
			name:     "pending override is inert",
			decision: blockDecision(),
			override: func() *override.Override {
				o := approvedOverride()
				o.Status = override.StatusPending
				return o
			}(),
			want: evaluate.ResultBlock,
		},
		{
			name:     "override for another version is inert",
			decision: blockDecision(),
			override: func() *override.Override {
				o := approvedOverride()
				o.PolicyVersionID = "ver-9"
				return o
			}(),
			want: evaluate.ResultBlock,
		},
		{
			name: "pass needs no override",
			decision: func() *ledger.Decision {
				d := blockDecision()
				d.Result = evaluate.ResultPass
				return d
			}(),
			want: evaluate.ResultPass,
		},
		{
			name: "approved override neutralizes warn",
			decision: func() *ledger.Decision {
				d := blockDecision()
				d.Result = evaluate.ResultWarn
				return d
			}(),
			override: approvedOverride(),
			want:     evaluate.ResultPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveResult(tt.decision, tt.override, tt.revocation, now)
			if got != tt.want {
				t.Fatalf("EffectiveResult = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	d := blockDecision()
	snap := &facts.Snapshot{
		ID:           "snap-1",
		Repo:         "acme/widgets",
		ChangeNumber: 7,
		Commit:       "abc123",
	}

	report, err := Report(d, snap)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Repo != "acme/widgets" || report.ChangeNumber != 7 || report.Commit != "abc123" {
		t.Fatalf("snapshot fields not carried: %+v", report)
	}
	if report.Result != evaluate.ResultBlock || report.IntegrityHash != "deadbeef" {
		t.Fatalf("decision fields not carried: %+v", report)
	}
	if !report.Finalized {
		t.Fatal("expected finalized report")
	}
}

func TestReportRejectsMismatchedSnapshot(t *testing.T) {
	d := blockDecision()
	snap := &facts.Snapshot{ID: "snap-2", Repo: "acme/widgets"}

	_, err := Report(d, snap)
	if _, ok := err.(*ReportError); !ok {
		t.Fatalf("expected *ReportError, got %v", err)
	}
	if _, err := Report(nil, snap); err == nil {
		t.Fatal("expected error for nil decision")
	}
}
