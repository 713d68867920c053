package ledger

import (
	"context"
	"time"

	"provost-hq/provost/pkg/evaluate"
)

// Status is the lifecycle state of a decision row.
type Status string

const (
	// StatusPending marks a freshly recorded decision that may still be
	// updated or discarded.
	StatusPending Status = "PENDING"

	// StatusFinal marks an immutable decision. No field of a FINAL row
	// ever changes again.
	StatusFinal Status = "FINAL"
)

// SubjectRef identifies the external subject a decision governs,
// typically a pull request.
type SubjectRef struct {
	// Kind is the subject type, e.g. "pull_request".
	Kind string `json:"kind"`

	// ExternalID identifies the subject in the external system,
	// e.g. "acme/widgets#42".
	ExternalID string `json:"external_id"`
}

// Decision is one row of the ledger: the outcome of evaluating one
// policy version against one fact snapshot for one subject.
type Decision struct {
	// ID is the decision identifier (UUID v4).
	ID string `json:"id"`

	// Subject is the governed external subject.
	Subject SubjectRef `json:"subject"`

	// PolicyVersionID is the evaluated policy version.
	PolicyVersionID string `json:"policy_version_id"`

	// SnapshotID is the evaluated fact snapshot.
	SnapshotID string `json:"snapshot_id"`

	// Result is the verdict.
	Result evaluate.Result `json:"result"`

	// Rationale explains the verdict.
	Rationale string `json:"rationale"`

	// IntegrityHash binds the decision to exactly what was evaluated.
	IntegrityHash string `json:"integrity_hash"`

	// EngineVersion is the engine that produced the outcome.
	EngineVersion string `json:"engine_version"`

	// Status is PENDING or FINAL.
	Status Status `json:"status"`

	// PreviousID chains an amended decision to its predecessor, empty
	// for an origin decision.
	PreviousID string `json:"previous_id,omitempty"`

	// OverrideID references the approved override that produced this
	// decision, when there is one.
	OverrideID string `json:"override_id,omitempty"`

	// CreatedAt is when the decision was recorded.
	CreatedAt time.Time `json:"created_at"`

	// FinalizedAt is when the decision became FINAL, nil while PENDING.
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Store is the persistence interface for decisions. Implementations own
// the immutability guarantee: the PENDING→FINAL transition and the
// FINAL-rejects-writes rule must hold under concurrent writers and
// survive restarts.
type Store interface {
	// PutDecision inserts a new decision row.
	PutDecision(ctx context.Context, d *Decision) error

	// GetDecision returns a decision by id.
	GetDecision(ctx context.Context, id string) (*Decision, error)

	// UpdateDecision replaces a PENDING decision's mutable fields. It
	// must fail with an ImmutableRecordError when the stored row is
	// FINAL.
	UpdateDecision(ctx context.Context, d *Decision) error

	// FinalizeDecision transitions PENDING→FINAL as a compare-and-swap
	// on the stored status. It reports whether this call performed the
	// transition; false with a nil error means the row was already
	// FINAL.
	FinalizeDecision(ctx context.Context, id string, at time.Time) (bool, error)

	// DecisionsBySubject returns all decisions for a subject, newest
	// first.
	DecisionsBySubject(ctx context.Context, subject SubjectRef) ([]*Decision, error)

	// LatestDecisionForSnapshot returns the newest decision recorded
	// against a fact snapshot, or a NotFoundError when none exists.
	LatestDecisionForSnapshot(ctx context.Context, snapshotID string) (*Decision, error)
}
