package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/simulate"
)

// Memory is the in-memory store. All methods copy on the way in and
// out, so callers can never mutate stored state behind the lock.
type Memory struct {
	mu sync.RWMutex

	snapshots    map[string]*facts.Snapshot
	byRepoCommit map[[2]string]string

	policies map[string]*registry.Policy
	versions map[string]*registry.Version

	decisions map[string]*ledger.Decision

	overrides   map[string]*override.Override
	signatures  map[string][]*override.Signature
	revocations map[string]*override.Revocation

	simulations map[string]*simulate.Simulation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		snapshots:    make(map[string]*facts.Snapshot),
		byRepoCommit: make(map[[2]string]string),
		policies:     make(map[string]*registry.Policy),
		versions:     make(map[string]*registry.Version),
		decisions:    make(map[string]*ledger.Decision),
		overrides:    make(map[string]*override.Override),
		signatures:   make(map[string][]*override.Signature),
		revocations:  make(map[string]*override.Revocation),
		simulations:  make(map[string]*simulate.Simulation),
	}
}

// --- facts.Store ---

// PutSnapshot persists a snapshot.
func (m *Memory) PutSnapshot(_ context.Context, snap *facts.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copySnapshot(snap)
	m.snapshots[snap.ID] = cp
	m.byRepoCommit[[2]string{snap.Repo, snap.Commit}] = snap.ID
	return nil
}

// GetSnapshot returns a snapshot by id.
func (m *Memory) GetSnapshot(_ context.Context, id string) (*facts.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[id]
	if !ok {
		return nil, &facts.NotFoundError{Key: id}
	}
	return copySnapshot(snap), nil
}

// GetSnapshotByRepoCommit returns the snapshot for a (repo, commit)
// pair.
func (m *Memory) GetSnapshotByRepoCommit(_ context.Context, repo, commit string) (*facts.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRepoCommit[[2]string{repo, commit}]
	if !ok {
		return nil, &facts.NotFoundError{Key: repo + "@" + commit}
	}
	return copySnapshot(m.snapshots[id]), nil
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (m *Memory) RecentSnapshots(_ context.Context, limit int) ([]*facts.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sortedSnapshotsLocked()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// SnapshotsByRepo returns up to limit snapshots stratified across
// repositories: the newest snapshot of every repository first, then the
// second newest of each, until the limit fills.
func (m *Memory) SnapshotsByRepo(_ context.Context, limit int) ([]*facts.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byRepo := make(map[string][]*facts.Snapshot)
	var repos []string
	for _, snap := range m.sortedSnapshotsLocked() {
		if _, ok := byRepo[snap.Repo]; !ok {
			repos = append(repos, snap.Repo)
		}
		byRepo[snap.Repo] = append(byRepo[snap.Repo], snap)
	}
	sort.Strings(repos)

	var out []*facts.Snapshot
	for depth := 0; len(out) < limit; depth++ {
		added := false
		for _, repo := range repos {
			if depth < len(byRepo[repo]) {
				out = append(out, byRepo[repo][depth])
				added = true
				if len(out) == limit {
					break
				}
			}
		}
		if !added {
			break
		}
	}
	return out, nil
}

// RiskySnapshots returns up to limit snapshots weighted toward risky
// history: snapshots whose decisions were BLOCK or carried an override
// come first, newest first, then recent snapshots fill the remainder.
func (m *Memory) RiskySnapshots(_ context.Context, limit int) ([]*facts.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	risky := make(map[string]bool)
	for _, d := range m.decisions {
		if d.Result == "BLOCK" || d.OverrideID != "" {
			risky[d.SnapshotID] = true
		}
	}

	all := m.sortedSnapshotsLocked()
	var out []*facts.Snapshot
	for _, snap := range all {
		if risky[snap.ID] {
			out = append(out, snap)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	for _, snap := range all {
		if !risky[snap.ID] {
			out = append(out, snap)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// sortedSnapshotsLocked returns copies of all snapshots newest first.
// Callers must hold at least the read lock.
func (m *Memory) sortedSnapshotsLocked() []*facts.Snapshot {
	out := make([]*facts.Snapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, copySnapshot(snap))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// --- registry.Store ---

// PutPolicy persists a policy.
func (m *Memory) PutPolicy(_ context.Context, p *registry.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

// GetPolicy returns a policy by id.
func (m *Memory) GetPolicy(_ context.Context, id string) (*registry.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, &registry.NotFoundError{Kind: "policy", ID: id}
	}
	cp := *p
	return &cp, nil
}

// PoliciesByTarget returns all policies for a scope target, ordered by
// id.
func (m *Memory) PoliciesByTarget(_ context.Context, scope registry.Scope, targetID string) ([]*registry.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*registry.Policy
	for _, p := range m.policies {
		if p.Scope == scope && p.TargetID == targetID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutVersion persists a version, rejecting a duplicate (policy, number)
// pair.
func (m *Memory) PutVersion(_ context.Context, v *registry.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.versions {
		if existing.PolicyID == v.PolicyID && existing.Number == v.Number {
			return &registry.VersionConflictError{
				PolicyID:  v.PolicyID,
				Requested: v.Number,
				Expected:  m.maxVersionLocked(v.PolicyID) + 1,
			}
		}
	}

	cp := *v
	m.versions[v.ID] = &cp
	return nil
}

// GetVersion returns a version by id.
func (m *Memory) GetVersion(_ context.Context, id string) (*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[id]
	if !ok {
		return nil, &registry.NotFoundError{Kind: "version", ID: id}
	}
	cp := *v
	return &cp, nil
}

// MaxVersionNumber returns the highest version number for a policy.
func (m *Memory) MaxVersionNumber(_ context.Context, policyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxVersionLocked(policyID), nil
}

func (m *Memory) maxVersionLocked(policyID string) int {
	max := 0
	for _, v := range m.versions {
		if v.PolicyID == policyID && v.Number > max {
			max = v.Number
		}
	}
	return max
}

// LatestVersionAt returns the newest version of a policy created at or
// before the given time.
func (m *Memory) LatestVersionAt(_ context.Context, policyID string, at time.Time) (*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *registry.Version
	for _, v := range m.versions {
		if v.PolicyID != policyID || v.CreatedAt.After(at) {
			continue
		}
		if best == nil || v.Number > best.Number {
			best = v
		}
	}
	if best == nil {
		return nil, &registry.NotFoundError{Kind: "version", ID: policyID}
	}
	cp := *best
	return &cp, nil
}

// --- ledger.Store ---

// PutDecision inserts a decision row.
func (m *Memory) PutDecision(_ context.Context, d *ledger.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyDecision(d)
	m.decisions[d.ID] = cp
	return nil
}

// GetDecision returns a decision by id.
func (m *Memory) GetDecision(_ context.Context, id string) (*ledger.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.decisions[id]
	if !ok {
		return nil, &ledger.NotFoundError{ID: id}
	}
	return copyDecision(d), nil
}

// UpdateDecision replaces a PENDING decision. FINAL rows reject the
// write with an ImmutableRecordError.
func (m *Memory) UpdateDecision(_ context.Context, d *ledger.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.decisions[d.ID]
	if !ok {
		return &ledger.NotFoundError{ID: d.ID}
	}
	if existing.Status == ledger.StatusFinal {
		return &ledger.ImmutableRecordError{ID: d.ID}
	}
	m.decisions[d.ID] = copyDecision(d)
	return nil
}

// FinalizeDecision transitions PENDING→FINAL under the lock, the
// in-memory equivalent of the SQL compare-and-swap.
func (m *Memory) FinalizeDecision(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decisions[id]
	if !ok {
		return false, &ledger.NotFoundError{ID: id}
	}
	if d.Status == ledger.StatusFinal {
		return false, nil
	}
	d.Status = ledger.StatusFinal
	finalized := at
	d.FinalizedAt = &finalized
	return true, nil
}

// DecisionsBySubject returns all decisions for a subject, newest first.
func (m *Memory) DecisionsBySubject(_ context.Context, subject ledger.SubjectRef) ([]*ledger.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ledger.Decision
	for _, d := range m.decisions {
		if d.Subject == subject {
			out = append(out, copyDecision(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LatestDecisionForSnapshot returns the newest decision recorded
// against a snapshot.
func (m *Memory) LatestDecisionForSnapshot(_ context.Context, snapshotID string) (*ledger.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *ledger.Decision
	for _, d := range m.decisions {
		if d.SnapshotID != snapshotID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, &ledger.NotFoundError{ID: snapshotID}
	}
	return copyDecision(latest), nil
}

// --- override.Store ---

// PutOverride inserts an override.
func (m *Memory) PutOverride(_ context.Context, o *override.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *o
	m.overrides[o.ID] = &cp
	return nil
}

// GetOverride returns an override by id.
func (m *Memory) GetOverride(_ context.Context, id string) (*override.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.overrides[id]
	if !ok {
		return nil, &override.NotFoundError{Kind: "override", ID: id}
	}
	cp := *o
	return &cp, nil
}

// OverridesBySubject returns all overrides for a subject, newest first.
func (m *Memory) OverridesBySubject(_ context.Context, subject ledger.SubjectRef) ([]*override.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*override.Override
	for _, o := range m.overrides {
		if o.Subject == subject {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AddSignature inserts a signature and runs the quorum predicate under
// the same lock, flipping the override to APPROVED when it holds. The
// caller observes the signature and the approval together or not at
// all.
func (m *Memory) AddSignature(_ context.Context, sig *override.Signature, quorum func([]*override.Signature) (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overrides[sig.OverrideID]
	if !ok {
		return false, &override.NotFoundError{Kind: "override", ID: sig.OverrideID}
	}
	if o.Status != override.StatusPending {
		return false, &override.InvalidStateError{OverrideID: sig.OverrideID, Status: o.Status, Operation: "sign"}
	}
	for _, existing := range m.signatures[sig.OverrideID] {
		if existing.ActorID == sig.ActorID {
			return false, &override.DuplicateSignatureError{OverrideID: sig.OverrideID, ActorID: sig.ActorID}
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
		o.Status = override.StatusApproved
	}
	return satisfied, nil
}

// SignaturesFor returns an override's signatures in signing order.
func (m *Memory) SignaturesFor(_ context.Context, overrideID string) ([]*override.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sigs := m.signatures[overrideID]
	out := make([]*override.Signature, len(sigs))
	for i, s := range sigs {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

// TransitionStatus moves an override between statuses as a
// compare-and-swap.
func (m *Memory) TransitionStatus(_ context.Context, id string, from, to override.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overrides[id]
	if !ok {
		return false, &override.NotFoundError{Kind: "override", ID: id}
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// ExpirePending transitions every PENDING override past its TTL to
// EXPIRED.
func (m *Memory) ExpirePending(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, o := range m.overrides {
		if o.Status == override.StatusPending && now.After(o.ExpiresAt) {
			o.Status = override.StatusExpired
			count++
		}
	}
	return count, nil
}

// PutRevocation inserts a revocation row.
func (m *Memory) PutRevocation(_ context.Context, r *override.Revocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.revocations[r.OverrideID] = &cp
	return nil
}

// RevocationFor returns the revocation for an override.
func (m *Memory) RevocationFor(_ context.Context, overrideID string) (*override.Revocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.revocations[overrideID]
	if !ok {
		return nil, &override.NotFoundError{Kind: "revocation", ID: overrideID}
	}
	cp := *r
	return &cp, nil
}

// --- simulate.Store ---

// PutSimulation inserts a simulation row.
func (m *Memory) PutSimulation(_ context.Context, s *simulate.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.simulations[s.ID] = copySimulation(s)
	return nil
}

// GetSimulation returns a simulation by id.
func (m *Memory) GetSimulation(_ context.Context, id string) (*simulate.Simulation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.simulations[id]
	if !ok {
		return nil, &simulate.NotFoundError{ID: id}
	}
	return copySimulation(s), nil
}

// UpdateSimulation replaces a simulation row.
func (m *Memory) UpdateSimulation(_ context.Context, s *simulate.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.simulations[s.ID]; !ok {
		return &simulate.NotFoundError{ID: s.ID}
	}
	m.simulations[s.ID] = copySimulation(s)
	return nil
}

// CompletedByHash returns the COMPLETED simulation with the given hash.
func (m *Memory) CompletedByHash(_ context.Context, hash string) (*simulate.Simulation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.simulations {
		if s.Hash == hash && s.Status == simulate.StatusCompleted {
			return copySimulation(s), nil
		}
	}
	return nil, &simulate.NotFoundError{ID: hash}
}

// --- copy helpers ---

func copySnapshot(snap *facts.Snapshot) *facts.Snapshot {
	cp := *snap
	if snap.Data != nil {
		cp.Data = deepCopyMap(snap.Data)
	}
	return &cp
}

func copyDecision(d *ledger.Decision) *ledger.Decision {
	cp := *d
	if d.FinalizedAt != nil {
		at := *d.FinalizedAt
		cp.FinalizedAt = &at
	}
	return &cp
}

func copySimulation(s *simulate.Simulation) *simulate.Simulation {
	cp := *s
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		cp.CompletedAt = &at
	}
	if s.SnapshotIDs != nil {
		cp.SnapshotIDs = append([]string(nil), s.SnapshotIDs...)
	}
	if s.Results != nil {
		results := *s.Results
		results.Impacted = make([]*simulate.Impacted, len(s.Results.Impacted))
		for i, imp := range s.Results.Impacted {
			impCp := *imp
			results.Impacted[i] = &impCp
		}
		cp.Results = &results
	}
	return &cp
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
