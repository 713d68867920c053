package enforce

import (
	"fmt"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/ledger"
)

// CheckReport is the payload posted back to the code host as a commit
// status or check run. It carries everything the collaborator needs and
// nothing it must recompute.
type CheckReport struct {
	Subject       ledger.SubjectRef `json:"subject"`
	Repo          string            `json:"repo"`
	ChangeNumber  int               `json:"change_number"`
	Commit        string            `json:"commit"`
	DecisionID    string            `json:"decision_id"`
	Result        evaluate.Result   `json:"result"`
	Rationale     string            `json:"rationale"`
	IntegrityHash string            `json:"integrity_hash"`
	EngineVersion string            `json:"engine_version"`
	Finalized     bool              `json:"finalized"`
}

// Report builds the check report for a decision and the snapshot it was
// evaluated against.
func Report(decision *ledger.Decision, snapshot *facts.Snapshot) (*CheckReport, error) {
	if decision == nil {
		return nil, &ReportError{Reason: "decision is required"}
	}
	if snapshot == nil {
		return nil, &ReportError{Reason: "snapshot is required"}
	}
	if decision.SnapshotID != snapshot.ID {
		return nil, &ReportError{
			Reason: fmt.Sprintf("decision %s was evaluated against snapshot %s, not %s",
				decision.ID, decision.SnapshotID, snapshot.ID),
		}
	}

	return &CheckReport{
		Subject:       decision.Subject,
		Repo:          snapshot.Repo,
		ChangeNumber:  snapshot.ChangeNumber,
		Commit:        snapshot.Commit,
		DecisionID:    decision.ID,
		Result:        decision.Result,
		Rationale:     decision.Rationale,
		IntegrityHash: decision.IntegrityHash,
		EngineVersion: decision.EngineVersion,
		Finalized:     decision.Status == ledger.StatusFinal,
	}, nil
}

// ReportError reports invalid report inputs.
type ReportError struct {
	Reason string
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("cannot build check report: %s", e.Reason)
}
