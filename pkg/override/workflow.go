package override

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"provost-hq/provost/pkg/ledger"
)

const (
	minJustification = 10
	maxJustification = 5000
)

// Workflow is the override request and approval service.
type Workflow struct {
	store      Store
	quorum     QuorumPolicy
	defaultTTL int
	logger     *slog.Logger
	now        func() time.Time
}

// NewWorkflow creates an override workflow. A nil quorum policy falls
// back to the default lead+security role quorum.
func NewWorkflow(store Store, quorum QuorumPolicy) *Workflow {
	if quorum == nil {
		quorum = DefaultQuorum()
	}
	return &Workflow{
		store:  store,
		quorum: quorum,
		logger: slog.Default().With("component", "override"),
		now:    time.Now,
	}
}

// SetDefaultTTL sets the TTL applied when Request is called with a
// non-positive ttlHours.
func (w *Workflow) SetDefaultTTL(hours int) {
	w.defaultTTL = hours
}

// Request creates a PENDING override for a subject. A subject with a
// live override in flight or approved cannot open a second one.
func (w *Workflow) Request(ctx context.Context, subject ledger.SubjectRef, policyVersionID string, category Category, ttlHours int) (*Override, error) {
	if subject.Kind == "" || subject.ExternalID == "" {
		return nil, &ValidationError{Reason: "subject kind and external id are required"}
	}
	if policyVersionID == "" {
		return nil, &ValidationError{Reason: "policy version id is required"}
	}
	if !category.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown category %q", category)}
	}
	if ttlHours <= 0 {
		ttlHours = w.defaultTTL
	}
	if ttlHours <= 0 {
		return nil, &ValidationError{Reason: "ttl must be positive"}
	}

	now := w.now()

	existing, err := w.store.OverridesBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	for _, o := range existing {
		switch o.Status {
		case StatusApproved:
			return nil, &AlreadyActiveError{Subject: subject.ExternalID, OverrideID: o.ID}
		case StatusPending:
			if !o.Expired(now) {
				return nil, &AlreadyActiveError{Subject: subject.ExternalID, OverrideID: o.ID}
			}
			// Opportunistically retire the stale request.
			if _, err := w.store.TransitionStatus(ctx, o.ID, StatusPending, StatusExpired); err != nil {
				return nil, err
			}
		}
	}

	o := &Override{
		ID:              uuid.New().String(),
		Subject:         subject,
		PolicyVersionID: policyVersionID,
		Category:        category,
		Status:          StatusPending,
		TTLHours:        ttlHours,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(ttlHours) * time.Hour),
	}

	if err := w.store.PutOverride(ctx, o); err != nil {
		return nil, err
	}

	w.logger.Info("override requested",
		"override_id", o.ID,
		"subject", subject.ExternalID,
		"policy_version_id", policyVersionID,
		"category", string(category),
		"ttl_hours", ttlHours,
	)

	return o, nil
}

// Sign records an actor's endorsement. The signature insert, the quorum
// check, and the PENDING→APPROVED flip happen in one store transaction;
// there is no state where quorum is met but the override still reads
// PENDING. Returns the signature and whether this signature approved
// the override.
func (w *Workflow) Sign(ctx context.Context, overrideID, actorID, roleAtSigning, justification, commitSHA string) (*Signature, bool, error) {
	if actorID == "" {
		return nil, false, &ValidationError{Reason: "actor id is required"}
	}
	if len(justification) < minJustification || len(justification) > maxJustification {
		return nil, false, &ValidationError{
			Reason: fmt.Sprintf("justification must be %d-%d characters, got %d",
				minJustification, maxJustification, len(justification)),
		}
	}

	o, err := w.store.GetOverride(ctx, overrideID)
	if err != nil {
		return nil, false, err
	}
	if o.Status != StatusPending {
		return nil, false, &InvalidStateError{OverrideID: overrideID, Status: o.Status, Operation: "sign"}
	}
	if o.Expired(w.now()) {
		// Detecting expiry retires the request as a side effect.
		if _, err := w.store.TransitionStatus(ctx, overrideID, StatusPending, StatusExpired); err != nil {
			return nil, false, err
		}
		return nil, false, &ExpiredOverrideError{OverrideID: overrideID}
	}

	sig := &Signature{
		ID:            uuid.New().String(),
		OverrideID:    overrideID,
		ActorID:       actorID,
		RoleAtSigning: roleAtSigning,
		Justification: justification,
		CommitSHA:     commitSHA,
		SignedAt:      w.now(),
	}

	approved, err := w.store.AddSignature(ctx, sig, w.quorum.Satisfied)
	if err != nil {
		return nil, false, err
	}

	w.logger.Info("override signed",
		"override_id", overrideID,
		"actor_id", actorID,
		"role", roleAtSigning,
		"approved", approved,
	)

	return sig, approved, nil
}

// Reject vetoes a PENDING override. No further signatures are accepted.
func (w *Workflow) Reject(ctx context.Context, overrideID, actorID, reason string) error {
	o, err := w.store.GetOverride(ctx, overrideID)
	if err != nil {
		return err
	}

	transitioned, err := w.store.TransitionStatus(ctx, overrideID, StatusPending, StatusRejected)
	if err != nil {
		return err
	}
	if !transitioned {
		return &InvalidStateError{OverrideID: overrideID, Status: o.Status, Operation: "reject"}
	}

	w.logger.Info("override rejected",
		"override_id", overrideID,
		"actor_id", actorID,
		"reason", reason,
	)
	return nil
}

// Revoke withdraws an APPROVED override by recording a revocation row.
// The override's status is untouched so the historical approval stays
// on the record; enforcement consults the revocation as a gate.
func (w *Workflow) Revoke(ctx context.Context, overrideID, actorID, reason string) (*Revocation, error) {
	o, err := w.store.GetOverride(ctx, overrideID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusApproved {
		return nil, &InvalidStateError{OverrideID: overrideID, Status: o.Status, Operation: "revoke"}
	}

	if _, err := w.store.RevocationFor(ctx, overrideID); err == nil {
		return nil, &ValidationError{Reason: "override is already revoked"}
	} else if _, ok := err.(*NotFoundError); !ok {
		return nil, err
	}

	r := &Revocation{
		ID:         uuid.New().String(),
		OverrideID: overrideID,
		ActorID:    actorID,
		Reason:     reason,
		RevokedAt:  w.now(),
	}

	if err := w.store.PutRevocation(ctx, r); err != nil {
		return nil, err
	}

	w.logger.Info("override revoked",
		"override_id", overrideID,
		"actor_id", actorID,
		"reason", reason,
	)

	return r, nil
}

// Get returns an override by id, opportunistically expiring it when
// the TTL elapsed while it sat PENDING.
func (w *Workflow) Get(ctx context.Context, id string) (*Override, error) {
	o, err := w.store.GetOverride(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusPending && o.Expired(w.now()) {
		if _, err := w.store.TransitionStatus(ctx, id, StatusPending, StatusExpired); err != nil {
			return nil, err
		}
		o.Status = StatusExpired
	}
	return o, nil
}

// Signatures returns an override's signatures in signing order.
func (w *Workflow) Signatures(ctx context.Context, overrideID string) ([]*Signature, error) {
	return w.store.SignaturesFor(ctx, overrideID)
}

// RevocationFor returns the revocation for an override, or nil when
// none exists.
func (w *Workflow) RevocationFor(ctx context.Context, overrideID string) (*Revocation, error) {
	r, err := w.store.RevocationFor(ctx, overrideID)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ExpireSweep retires every PENDING override past its TTL. Called on a
// schedule; the same check also runs opportunistically on read and
// sign.
func (w *Workflow) ExpireSweep(ctx context.Context) (int, error) {
	expired, err := w.store.ExpirePending(ctx, w.now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		w.logger.Info("expired pending overrides", "count", expired)
	}
	return expired, nil
}

// InvalidateForCommit expires APPROVED overrides for a subject whose
// latest signature endorsed a different commit. An approval is confined
// to the exact code state the signers reviewed.
func (w *Workflow) InvalidateForCommit(ctx context.Context, subject ledger.SubjectRef, currentSHA string) (int, error) {
	overrides, err := w.store.OverridesBySubject(ctx, subject)
	if err != nil {
		return 0, err
	}

	invalidated := 0
	for _, o := range overrides {
		if o.Status != StatusApproved {
			continue
		}
		sigs, err := w.store.SignaturesFor(ctx, o.ID)
		if err != nil {
			return invalidated, err
		}
		if len(sigs) == 0 {
			continue
		}
		last := sigs[len(sigs)-1]
		if last.CommitSHA == currentSHA {
			continue
		}
		transitioned, err := w.store.TransitionStatus(ctx, o.ID, StatusApproved, StatusExpired)
		if err != nil {
			return invalidated, err
		}
		if transitioned {
			invalidated++
			w.logger.Info("override invalidated by new commit",
				"override_id", o.ID,
				"approved_sha", last.CommitSHA,
				"current_sha", currentSHA,
			)
		}
	}
	return invalidated, nil
}
