package govmetrics

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Signal thresholds, as fractions of total evaluations. Bypass follows
// the 5% alerting line used for override velocity; drift and gap lines
// are deliberately looser since they describe policy shape, not abuse.
const (
	bypassAttentionPct = 0.05
	bypassAnomalyPct   = 0.15

	driftAttentionPct = 0.10
	driftAnomalyPct   = 0.25

	gapAttentionPct = 0.50
	gapAnomalyPct   = 0.75
)

// DeriveSignals inspects a policy's accumulated counters and stores one
// signal per trend that crosses an attention threshold. Signals are
// advisory; callers never gate enforcement on them.
func (a *Aggregator) DeriveSignals(ctx context.Context, policyID, targetID string) ([]*Signal, error) {
	rows, err := a.store.MetricsForPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	var evaluations, blocks, overrides, challenges int
	for _, m := range rows {
		evaluations += m.TotalEvaluations
		blocks += m.TotalBlocks
		overrides += m.TotalOverrides
		challenges += m.ChallengeCount
	}
	if evaluations == 0 {
		return nil, nil
	}

	bypassRate := float64(overrides) / float64(evaluations)
	driftRate := float64(challenges) / float64(evaluations)
	blockRate := float64(blocks) / float64(evaluations)

	var signals []*Signal
	if level, ok := classify(bypassRate, bypassAttentionPct, bypassAnomalyPct); ok {
		signals = append(signals, a.newSignal(SignalBypassVelocity, targetID, level, map[string]interface{}{
			"policy_id":       policyID,
			"bypass_velocity": round2(bypassRate),
			"threshold":       bypassAttentionPct,
		}))
	}
	if level, ok := classify(driftRate, driftAttentionPct, driftAnomalyPct); ok {
		signals = append(signals, a.newSignal(SignalPolicyDrift, targetID, level, map[string]interface{}{
			"policy_id":      policyID,
			"challenge_rate": round2(driftRate),
			"threshold":      driftAttentionPct,
		}))
	}
	if level, ok := classify(blockRate, gapAttentionPct, gapAnomalyPct); ok {
		signals = append(signals, a.newSignal(SignalComplianceGap, targetID, level, map[string]interface{}{
			"policy_id":  policyID,
			"block_rate": round2(blockRate),
			"threshold":  gapAttentionPct,
		}))
	}

	for _, s := range signals {
		if err := a.store.PutSignal(ctx, s); err != nil {
			return nil, err
		}
		a.metrics.recordSignal(string(s.Type), string(s.Level))
		a.logger.Info("governance signal derived",
			"type", string(s.Type),
			"level", string(s.Level),
			"target", targetID,
		)
	}

	return signals, nil
}

// TrustReport computes the trust score and bypass velocity for a policy
// from its accumulated counters. A trust score of 1.0 means no decision
// was ever overridden.
func (a *Aggregator) TrustReport(ctx context.Context, policyID string) (*TrustReport, error) {
	rows, err := a.store.MetricsForPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	report := &TrustReport{PolicyID: policyID, TrustScore: 1.0}
	for _, m := range rows {
		report.TotalDecisions += m.TotalEvaluations
		report.TotalBlocks += m.TotalBlocks
		report.TotalOverrides += m.TotalOverrides
	}
	if report.TotalDecisions == 0 {
		return report, nil
	}

	velocity := float64(report.TotalOverrides) / float64(report.TotalDecisions)
	report.BypassVelocity = round2(velocity)
	report.TrustScore = round2(1 - velocity)
	return report, nil
}

func (a *Aggregator) newSignal(t SignalType, targetID string, level SignalLevel, metadata map[string]interface{}) *Signal {
	return &Signal{
		ID:        uuid.New().String(),
		Type:      t,
		TargetID:  targetID,
		Level:     level,
		Metadata:  metadata,
		CreatedAt: a.now(),
	}
}

func classify(rate, attention, anomaly float64) (SignalLevel, bool) {
	switch {
	case rate > anomaly:
		return LevelAnomaly, true
	case rate > attention:
		return LevelAttention, true
	}
	return "", false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
