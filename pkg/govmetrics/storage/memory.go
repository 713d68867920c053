package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"provost-hq/provost/pkg/govmetrics"
)

// Memory implements govmetrics.Store in process memory. All data is
// lost when the process exits.
type Memory struct {
	mu        sync.Mutex
	processed map[string]bool
	metrics   map[[2]string]*govmetrics.Metric
	signals   []*govmetrics.Signal
	now       func() time.Time
}

// NewMemory creates an empty in-memory metrics store.
func NewMemory() *Memory {
	return &Memory{
		processed: make(map[string]bool),
		metrics:   make(map[[2]string]*govmetrics.Metric),
		now:       time.Now,
	}
}

// Apply records the event id and applies the delta under one lock, so a
// replayed event can never half-apply.
func (m *Memory) Apply(ctx context.Context, eventID, policyID, versionID string, delta govmetrics.Delta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed[eventID] {
		return false, nil
	}
	m.processed[eventID] = true

	key := [2]string{policyID, versionID}
	row, ok := m.metrics[key]
	if !ok {
		row = &govmetrics.Metric{PolicyID: policyID, VersionID: versionID}
		m.metrics[key] = row
	}
	row.TotalEvaluations += delta.Evaluations
	row.TotalBlocks += delta.Blocks
	row.TotalOverrides += delta.Overrides
	row.ChallengeCount += delta.Challenges
	row.UpdatedAt = m.now()
	return true, nil
}

// Metric returns a copy of the counter row, zero-valued when absent.
func (m *Memory) Metric(ctx context.Context, policyID, versionID string) (*govmetrics.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.metrics[[2]string{policyID, versionID}]
	if !ok {
		return &govmetrics.Metric{PolicyID: policyID, VersionID: versionID}, nil
	}
	out := *row
	return &out, nil
}

// MetricsForPolicy returns every version row for a policy, ordered by
// version id for stable output.
func (m *Memory) MetricsForPolicy(ctx context.Context, policyID string) ([]*govmetrics.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*govmetrics.Metric
	for key, row := range m.metrics {
		if key[0] != policyID {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	return out, nil
}

// PutSignal stores a signal.
func (m *Memory) PutSignal(ctx context.Context, s *govmetrics.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.signals = append(m.signals, &cp)
	return nil
}

// SignalsForTarget returns signals for a target, newest first.
func (m *Memory) SignalsForTarget(ctx context.Context, targetID string, limit int) ([]*govmetrics.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*govmetrics.Signal
	for i := len(m.signals) - 1; i >= 0; i-- {
		if m.signals[i].TargetID != targetID {
			continue
		}
		cp := *m.signals[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}
