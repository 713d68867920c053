package bundle

import (
	"context"
	"sort"
	"time"

	"provost-hq/provost/pkg/registry"
)

// regMemStore is an in-memory registry.Store for sync tests.
type regMemStore struct {
	policies map[string]*registry.Policy
	versions map[string]*registry.Version
}

func newRegMemStore() *regMemStore {
	return &regMemStore{
		policies: make(map[string]*registry.Policy),
		versions: make(map[string]*registry.Version),
	}
}

func (m *regMemStore) PutPolicy(_ context.Context, p *registry.Policy) error {
	m.policies[p.ID] = p
	return nil
}

func (m *regMemStore) GetPolicy(_ context.Context, id string) (*registry.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, &registry.NotFoundError{Kind: "policy", ID: id}
	}
	return p, nil
}

func (m *regMemStore) PoliciesByTarget(_ context.Context, scope registry.Scope, targetID string) ([]*registry.Policy, error) {
	var out []*registry.Policy
	for _, p := range m.policies {
		if p.Scope == scope && p.TargetID == targetID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *regMemStore) PutVersion(_ context.Context, v *registry.Version) error {
	m.versions[v.ID] = v
	return nil
}

func (m *regMemStore) GetVersion(_ context.Context, id string) (*registry.Version, error) {
	v, ok := m.versions[id]
	if !ok {
		return nil, &registry.NotFoundError{Kind: "version", ID: id}
	}
	return v, nil
}

func (m *regMemStore) MaxVersionNumber(_ context.Context, policyID string) (int, error) {
	max := 0
	for _, v := range m.versions {
		if v.PolicyID == policyID && v.Number > max {
			max = v.Number
		}
	}
	return max, nil
}

func (m *regMemStore) LatestVersionAt(_ context.Context, policyID string, at time.Time) (*registry.Version, error) {
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
	return best, nil
}
