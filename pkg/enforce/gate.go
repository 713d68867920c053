package enforce

import (
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
)

// EffectiveResult computes what enforcement should actually do for a
// decision, given an optional override and its optional revocation.
//
// An override neutralizes a BLOCK or WARN only while it is APPROVED,
// unrevoked, and targets the same policy version as the decision. A
// revoked override leaves its historical APPROVED status intact but is
// inert here; the decision's own result stands.
func EffectiveResult(decision *ledger.Decision, o *override.Override, r *override.Revocation, at time.Time) evaluate.Result {
	if decision == nil {
		return evaluate.ResultBlock
	}
	if decision.Result == evaluate.ResultPass {
		return evaluate.ResultPass
	}
	if !overrideActive(decision, o, r, at) {
		return decision.Result
	}
	return evaluate.ResultPass
}

func overrideActive(decision *ledger.Decision, o *override.Override, r *override.Revocation, at time.Time) bool {
	if o == nil {
		return false
	}
	if o.Status != override.StatusApproved {
		return false
	}
	if r != nil && r.OverrideID == o.ID {
		return false
	}
	if o.PolicyVersionID != "" && decision.PolicyVersionID != "" &&
		o.PolicyVersionID != decision.PolicyVersionID {
		return false
	}
	return true
}
