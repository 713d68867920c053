package govmetrics

import (
	"context"
	"log/slog"
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
	"provost-hq/provost/pkg/registry"
)

// Aggregator folds governance events into derived metric rows. Events
// may be delivered at least once; every increment is keyed by the
// triggering event id so replays never double-count.
type Aggregator struct {
	store    Store
	registry *registry.Registry
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewAggregator creates a metrics aggregator. metrics may be nil when
// Prometheus mirroring is not wanted.
func NewAggregator(store Store, reg *registry.Registry, metrics *Metrics) *Aggregator {
	return &Aggregator{
		store:    store,
		registry: reg,
		metrics:  metrics,
		logger:   slog.Default().With("component", "govmetrics"),
		now:      time.Now,
	}
}

// OnDecisionFinalized folds one finalized decision into the metric row
// of its policy version.
func (a *Aggregator) OnDecisionFinalized(ctx context.Context, d *ledger.Decision) error {
	if d == nil {
		return &InvalidEventError{Reason: "decision is nil"}
	}
	if d.Status != ledger.StatusFinal {
		return &InvalidEventError{Reason: "decision is not FINAL"}
	}

	v, err := a.registry.GetVersion(ctx, d.PolicyVersionID)
	if err != nil {
		return err
	}

	delta := Delta{Evaluations: 1}
	if d.Result == evaluate.ResultBlock {
		delta.Blocks = 1
	}
	if d.OverrideID != "" {
		delta.Overrides = 1
	}

	applied, err := a.store.Apply(ctx, "decision:"+d.ID, v.PolicyID, v.ID, delta)
	if err != nil {
		return err
	}
	if !applied {
		a.metrics.recordDuplicate()
		a.logger.Debug("dropped replayed decision event", "decision_id", d.ID)
		return nil
	}

	a.metrics.recordDecision(string(d.Result))
	return nil
}

// OnOverrideResolved folds one resolved override into the challenge
// counter of its policy version. Only terminal overrides count; a
// PENDING override is not yet an event.
func (a *Aggregator) OnOverrideResolved(ctx context.Context, o *override.Override) error {
	if o == nil {
		return &InvalidEventError{Reason: "override is nil"}
	}
	if o.Status == override.StatusPending {
		return &InvalidEventError{Reason: "override has not reached a terminal status"}
	}

	v, err := a.registry.GetVersion(ctx, o.PolicyVersionID)
	if err != nil {
		return err
	}

	applied, err := a.store.Apply(ctx, "override:"+o.ID, v.PolicyID, v.ID, Delta{Challenges: 1})
	if err != nil {
		return err
	}
	if !applied {
		a.metrics.recordDuplicate()
		a.logger.Debug("dropped replayed override event", "override_id", o.ID)
		return nil
	}

	a.metrics.recordOverride(string(o.Status))
	return nil
}

// Metric returns the counter row for one (policy, version) pair.
func (a *Aggregator) Metric(ctx context.Context, policyID, versionID string) (*Metric, error) {
	return a.store.Metric(ctx, policyID, versionID)
}
