package evaluate

import (
	"crypto/sha256"
	"encoding/hex"

	"provost-hq/provost/pkg/rules"
)

// IntegrityHash computes the SHA-256 hex digest binding a decision to
// exactly what was evaluated: the policy version, the fact snapshot,
// the rule logic, and the verdict. The input is canonical JSON (sorted
// keys), so the hash is stable across processes and re-evaluations.
func IntegrityHash(policyVersionID, factID string, ruleSet *rules.RuleSet, result Result) (string, error) {
	canonical, err := rules.CanonicalJSON(map[string]interface{}{
		"policy_version_id": policyVersionID,
		"fact_id":           factID,
		"rules_logic":       ruleSet,
		"result":            string(result),
	})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
