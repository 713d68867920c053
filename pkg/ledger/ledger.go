package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"provost-hq/provost/pkg/evaluate"
)

// Ledger is the decision recording service.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a ledger backed by the given store.
func New(store Store) *Ledger {
	return &Ledger{
		store:  store,
		logger: slog.Default().With("component", "ledger"),
		now:    time.Now,
	}
}

// Record inserts a new PENDING decision from an evaluation outcome and
// returns it.
func (l *Ledger) Record(ctx context.Context, subject SubjectRef, outcome *evaluate.Outcome) (*Decision, error) {
	if subject.Kind == "" || subject.ExternalID == "" {
		return nil, &ValidationError{Reason: "subject kind and external id are required"}
	}
	if outcome == nil {
		return nil, &ValidationError{Reason: "evaluation outcome is required"}
	}

	d := &Decision{
		ID:              uuid.New().String(),
		Subject:         subject,
		PolicyVersionID: outcome.PolicyVersionID,
		SnapshotID:      outcome.SnapshotID,
		Result:          outcome.Result,
		Rationale:       outcome.Rationale,
		IntegrityHash:   outcome.IntegrityHash,
		EngineVersion:   outcome.EngineVersion,
		Status:          StatusPending,
		CreatedAt:       l.now(),
	}

	if err := l.store.PutDecision(ctx, d); err != nil {
		return nil, err
	}

	l.logger.Info("decision recorded",
		"decision_id", d.ID,
		"subject", subject.ExternalID,
		"result", string(d.Result),
	)

	return d, nil
}

// Update replaces the mutable fields of a PENDING decision. The store
// rejects the write with an ImmutableRecordError once the row is FINAL.
func (l *Ledger) Update(ctx context.Context, d *Decision) error {
	return l.store.UpdateDecision(ctx, d)
}

// Finalize transitions a decision PENDING→FINAL. Finalizing an already
// FINAL decision is a no-op returning success; the transition itself is
// a compare-and-swap in the store, so concurrent finalizers cannot both
// win.
func (l *Ledger) Finalize(ctx context.Context, id string) error {
	transitioned, err := l.store.FinalizeDecision(ctx, id, l.now())
	if err != nil {
		return err
	}
	if transitioned {
		l.logger.Info("decision finalized", "decision_id", id)
	}
	return nil
}

// Get returns a decision by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Decision, error) {
	return l.store.GetDecision(ctx, id)
}

// Amend records a brand-new decision chained to a FINAL predecessor.
// The predecessor row is untouched; this is the only sanctioned way to
// reflect a changed outcome. The optional overrideID links the new
// decision to the approved override that produced it.
func (l *Ledger) Amend(ctx context.Context, previousID string, outcome *evaluate.Outcome, overrideID string) (*Decision, error) {
	prev, err := l.store.GetDecision(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if prev.Status != StatusFinal {
		return nil, &ValidationError{Reason: "only FINAL decisions can be amended"}
	}
	if outcome == nil {
		return nil, &ValidationError{Reason: "evaluation outcome is required"}
	}

	d := &Decision{
		ID:              uuid.New().String(),
		Subject:         prev.Subject,
		PolicyVersionID: outcome.PolicyVersionID,
		SnapshotID:      outcome.SnapshotID,
		Result:          outcome.Result,
		Rationale:       outcome.Rationale,
		IntegrityHash:   outcome.IntegrityHash,
		EngineVersion:   outcome.EngineVersion,
		Status:          StatusPending,
		PreviousID:      previousID,
		OverrideID:      overrideID,
		CreatedAt:       l.now(),
	}

	if err := l.store.PutDecision(ctx, d); err != nil {
		return nil, err
	}

	l.logger.Info("decision amended",
		"decision_id", d.ID,
		"previous_id", previousID,
		"override_id", overrideID,
		"result", string(d.Result),
	)

	return d, nil
}

// Chain walks a decision's amendment history back to its origin,
// returning decisions newest first, starting with the given id.
func (l *Ledger) Chain(ctx context.Context, id string) ([]*Decision, error) {
	var chain []*Decision
	seen := make(map[string]bool)

	for id != "" {
		// A malformed predecessor loop must not hang the audit walk.
		if seen[id] {
			return nil, &ValidationError{Reason: "decision chain contains a cycle at " + id}
		}
		seen[id] = true

		d, err := l.store.GetDecision(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, d)
		id = d.PreviousID
	}

	return chain, nil
}

// BySubject returns all decisions recorded for a subject, newest first.
func (l *Ledger) BySubject(ctx context.Context, subject SubjectRef) ([]*Decision, error) {
	return l.store.DecisionsBySubject(ctx, subject)
}

// LatestForSnapshot returns the newest decision recorded against a fact
// snapshot.
func (l *Ledger) LatestForSnapshot(ctx context.Context, snapshotID string) (*Decision, error) {
	return l.store.LatestDecisionForSnapshot(ctx, snapshotID)
}
