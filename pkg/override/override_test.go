package override

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"provost-hq/provost/pkg/ledger"
)

// memStore mirrors the production store guarantees: the signature
// insert and the approval flip happen under one lock.
type memStore struct {
	mu          sync.Mutex
	overrides   map[string]*Override
	signatures  map[string][]*Signature
	revocations map[string]*Revocation
}

func newMemStore() *memStore {
	return &memStore{
		overrides:   make(map[string]*Override),
		signatures:  make(map[string][]*Signature),
		revocations: make(map[string]*Revocation),
	}
}

func (m *memStore) PutOverride(_ context.Context, o *Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.overrides[o.ID] = &cp
	return nil
}

func (m *memStore) GetOverride(_ context.Context, id string) (*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[id]
	if !ok {
		return nil, &NotFoundError{Kind: "override", ID: id}
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) OverridesBySubject(_ context.Context, subject ledger.SubjectRef) ([]*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Override
	for _, o := range m.overrides {
		if o.Subject == subject {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) AddSignature(_ context.Context, sig *Signature, quorum func([]*Signature) (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overrides[sig.OverrideID]
	if !ok {
		return false, &NotFoundError{Kind: "override", ID: sig.OverrideID}
	}
	if o.Status != StatusPending {
		return false, &InvalidStateError{OverrideID: sig.OverrideID, Status: o.Status, Operation: "sign"}
	}
	for _, existing := range m.signatures[sig.OverrideID] {
		if existing.ActorID == sig.ActorID {
			return false, &DuplicateSignatureError{OverrideID: sig.OverrideID, ActorID: sig.ActorID}
		}
	}

	cp := *sig
	all := append(m.signatures[sig.OverrideID], &cp)

	satisfied, err := quorum(all)
	if err != nil {
		return false, err
	}

	m.signatures[sig.OverrideID] = all
	if satisfied {
		o.Status = StatusApproved
	}
	return satisfied, nil
}

func (m *memStore) SignaturesFor(_ context.Context, overrideID string) ([]*Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sigs := m.signatures[overrideID]
	out := make([]*Signature, len(sigs))
	for i, s := range sigs {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id string, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[id]
	if !ok {
		return false, &NotFoundError{Kind: "override", ID: id}
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memStore) ExpirePending(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, o := range m.overrides {
		if o.Status == StatusPending && now.After(o.ExpiresAt) {
			o.Status = StatusExpired
			count++
		}
	}
	return count, nil
}

func (m *memStore) PutRevocation(_ context.Context, r *Revocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.revocations[r.OverrideID] = &cp
	return nil
}

func (m *memStore) RevocationFor(_ context.Context, overrideID string) (*Revocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.revocations[overrideID]
	if !ok {
		return nil, &NotFoundError{Kind: "revocation", ID: overrideID}
	}
	cp := *r
	return &cp, nil
}

func testSubject() ledger.SubjectRef {
	return ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/widgets#42"}
}

const justification = "hotfix for production outage, incident INC-1042"

func newTestWorkflow(at time.Time) (*Workflow, *memStore, *time.Time) {
	store := newMemStore()
	w := NewWorkflow(store, nil)
	clock := at
	w.now = func() time.Time { return clock }
	return w, store, &clock
}

func TestRequestValidation(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	tests := []struct {
		name     string
		subject  ledger.SubjectRef
		version  string
		category Category
		ttl      int
	}{
		{"empty subject", ledger.SubjectRef{}, "ver-1", CategoryEmergencyHotfix, 1},
		{"empty version", testSubject(), "", CategoryEmergencyHotfix, 1},
		{"bad category", testSubject(), "ver-1", Category("WHIM"), 1},
		{"zero ttl", testSubject(), "ver-1", CategoryEmergencyHotfix, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Request(ctx, tt.subject, tt.version, tt.category, tt.ttl)
			if _, ok := err.(*ValidationError); !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

func TestRequestFallsBackToDefaultTTL(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	w.SetDefaultTTL(24)
	ctx := context.Background()

	o, err := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 0)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if o.TTLHours != 24 {
		t.Errorf("TTLHours = %d, want 24", o.TTLHours)
	}
}

func TestRequestRejectsSecondActive(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	if _, err := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 4); err != nil {
		t.Fatalf("Request: %v", err)
	}

	_, err := w.Request(ctx, testSubject(), "ver-2", CategoryFalsePositive, 4)
	if _, ok := err.(*AlreadyActiveError); !ok {
		t.Fatalf("expected *AlreadyActiveError, got %v", err)
	}
}

func TestSignQuorumApproval(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, err := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 4)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// First required role alone does not approve.
	_, approved, err := w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1")
	if err != nil {
		t.Fatalf("Sign lead: %v", err)
	}
	if approved {
		t.Fatal("quorum must not be satisfied by one role")
	}

	got, err := w.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected PENDING before quorum, got %s", got.Status)
	}

	// Second required role from a distinct actor approves atomically.
	_, approved, err = w.Sign(ctx, o.ID, "bob", "security", justification, "sha-1")
	if err != nil {
		t.Fatalf("Sign security: %v", err)
	}
	if !approved {
		t.Fatal("quorum satisfied but not approved")
	}

	got, err = w.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", got.Status)
	}

	// Approved overrides accept no further signatures.
	_, _, err = w.Sign(ctx, o.ID, "carol", "lead", justification, "sha-1")
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected *InvalidStateError, got %v", err)
	}
}

func TestSignRejectsDuplicateActor(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, _ := w.Request(ctx, testSubject(), "ver-1", CategoryLegacyCode, 4)

	if _, _, err := w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1"); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	_, _, err := w.Sign(ctx, o.ID, "alice", "security", justification, "sha-1")
	if _, ok := err.(*DuplicateSignatureError); !ok {
		t.Fatalf("expected *DuplicateSignatureError, got %v", err)
	}
}

func TestSignJustificationBounds(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, _ := w.Request(ctx, testSubject(), "ver-1", CategoryBusinessException, 4)

	if _, _, err := w.Sign(ctx, o.ID, "alice", "lead", "too short", "sha-1"); err == nil {
		t.Fatal("expected short justification to be rejected")
	}

	long := make([]byte, maxJustification+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, _, err := w.Sign(ctx, o.ID, "alice", "lead", string(long), "sha-1"); err == nil {
		t.Fatal("expected oversized justification to be rejected")
	}
}

func TestSignAfterTTLExpires(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w, _, clock := newTestWorkflow(start)
	ctx := context.Background()

	o, err := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 1)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// 11:01, one minute past the one-hour TTL.
	*clock = start.Add(time.Hour + time.Minute)

	_, _, err = w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1")
	if _, ok := err.(*ExpiredOverrideError); !ok {
		t.Fatalf("expected *ExpiredOverrideError, got %v", err)
	}

	// Detecting expiry transitions the override as a side effect.
	got, err := w.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
}

func TestRejectStopsSignatures(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, _ := w.Request(ctx, testSubject(), "ver-1", CategoryFalsePositive, 4)

	if err := w.Reject(ctx, o.ID, "dave", "risk not acceptable"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	_, _, err := w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1")
	if _, ok := err.(*InvalidStateError); !ok {
		t.Fatalf("expected *InvalidStateError after reject, got %v", err)
	}

	// Rejecting twice is invalid.
	if err := w.Reject(ctx, o.ID, "dave", "again"); err == nil {
		t.Fatal("expected second reject to fail")
	}
}

func TestRevokeKeepsStatus(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, _ := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 4)

	// Revoking a PENDING override is invalid.
	if _, err := w.Revoke(ctx, o.ID, "dave", "early"); err == nil {
		t.Fatal("expected revoke of PENDING override to fail")
	}

	w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1")
	w.Sign(ctx, o.ID, "bob", "security", justification, "sha-1")

	r, err := w.Revoke(ctx, o.ID, "dave", "superseded by proper fix")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if r.OverrideID != o.ID {
		t.Fatalf("unexpected revocation: %+v", r)
	}

	// Status preserved for the historical record.
	got, err := w.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("revocation must not change status, got %s", got.Status)
	}

	if _, err := w.Revoke(ctx, o.ID, "dave", "twice"); err == nil {
		t.Fatal("expected double revoke to fail")
	}
}

func TestExpireSweep(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w, _, clock := newTestWorkflow(start)
	ctx := context.Background()

	first, _ := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 1)
	other := ledger.SubjectRef{Kind: "pull_request", ExternalID: "acme/widgets#43"}
	second, _ := w.Request(ctx, other, "ver-1", CategoryEmergencyHotfix, 8)

	*clock = start.Add(2 * time.Hour)

	expired, err := w.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}

	got, _ := w.Get(ctx, first.ID)
	if got.Status != StatusExpired {
		t.Fatalf("expected first EXPIRED, got %s", got.Status)
	}
	got, _ = w.Get(ctx, second.ID)
	if got.Status != StatusPending {
		t.Fatalf("expected second still PENDING, got %s", got.Status)
	}
}

func TestInvalidateForCommit(t *testing.T) {
	w, _, _ := newTestWorkflow(time.Now())
	ctx := context.Background()

	o, _ := w.Request(ctx, testSubject(), "ver-1", CategoryEmergencyHotfix, 4)
	w.Sign(ctx, o.ID, "alice", "lead", justification, "sha-1")
	w.Sign(ctx, o.ID, "bob", "security", justification, "sha-1")

	// The approved commit is still the head, nothing to invalidate.
	n, err := w.InvalidateForCommit(ctx, testSubject(), "sha-1")
	if err != nil {
		t.Fatalf("InvalidateForCommit: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 invalidated, got %d", n)
	}

	// A new commit retires the approval.
	n, err = w.InvalidateForCommit(ctx, testSubject(), "sha-2")
	if err != nil {
		t.Fatalf("InvalidateForCommit: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 invalidated, got %d", n)
	}

	got, _ := w.Get(ctx, o.ID)
	if got.Status != StatusExpired {
		t.Fatalf("expected EXPIRED after commit moved, got %s", got.Status)
	}
}

func TestRoleQuorumDistinctActors(t *testing.T) {
	q := DefaultQuorum()

	// One actor holding both roles cannot satisfy a two-role quorum.
	sigs := []*Signature{
		{ActorID: "alice", RoleAtSigning: "lead"},
		{ActorID: "alice", RoleAtSigning: "security"},
	}
	ok, err := q.Satisfied(sigs)
	if err != nil {
		t.Fatalf("Satisfied: %v", err)
	}
	if ok {
		t.Fatal("one actor must not satisfy two required roles")
	}

	sigs = append(sigs, &Signature{ActorID: "bob", RoleAtSigning: "security"})
	ok, err = q.Satisfied(sigs)
	if err != nil {
		t.Fatalf("Satisfied: %v", err)
	}
	if !ok {
		t.Fatal("distinct lead and security signers must satisfy quorum")
	}
}

func TestCountQuorum(t *testing.T) {
	q := &CountQuorum{MinSigners: 2}

	sigs := []*Signature{{ActorID: "alice"}, {ActorID: "alice"}}
	if ok, _ := q.Satisfied(sigs); ok {
		t.Fatal("duplicate actor must count once")
	}

	sigs = append(sigs, &Signature{ActorID: "bob"})
	if ok, _ := q.Satisfied(sigs); !ok {
		t.Fatal("two distinct actors must satisfy quorum")
	}
}
