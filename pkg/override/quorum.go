package override

import "fmt"

// QuorumPolicy decides when an override's accumulated signatures are
// sufficient for approval. Implementations must be pure functions of
// the signature set so the store can run them inside its signing
// transaction.
type QuorumPolicy interface {
	// Satisfied reports whether the signatures meet quorum.
	Satisfied(signatures []*Signature) (bool, error)
}

// RoleQuorum approves when every required role has signed, each by a
// distinct actor. One actor cannot satisfy two required roles.
type RoleQuorum struct {
	// Required is the set of roles that must each contribute a
	// signature.
	Required []string
}

// DefaultQuorum requires one lead and one security signature, the
// two-person rule for production policy bypasses.
func DefaultQuorum() *RoleQuorum {
	return &RoleQuorum{Required: []string{"lead", "security"}}
}

// Satisfied reports whether every required role is covered by a
// distinct signer. Role-to-actor assignment is a small matching
// problem: an actor who signed under several roles must only be counted
// for one of them.
func (q *RoleQuorum) Satisfied(signatures []*Signature) (bool, error) {
	if len(q.Required) == 0 {
		return false, fmt.Errorf("role quorum requires at least one role")
	}

	actorsByRole := make(map[string][]string)
	for _, sig := range signatures {
		actorsByRole[sig.RoleAtSigning] = append(actorsByRole[sig.RoleAtSigning], sig.ActorID)
	}

	used := make(map[string]bool)
	return assignRoles(q.Required, actorsByRole, used), nil
}

// assignRoles backtracks over candidate actors per role. Required role
// sets are tiny, so the exponential worst case never matters.
func assignRoles(required []string, actorsByRole map[string][]string, used map[string]bool) bool {
	if len(required) == 0 {
		return true
	}
	role, rest := required[0], required[1:]
	for _, actor := range actorsByRole[role] {
		if used[actor] {
			continue
		}
		used[actor] = true
		if assignRoles(rest, actorsByRole, used) {
			return true
		}
		used[actor] = false
	}
	return false
}

// CountQuorum approves once a minimum number of distinct actors have
// signed, regardless of role.
type CountQuorum struct {
	// MinSigners is the required number of distinct actors.
	MinSigners int
}

// Satisfied reports whether enough distinct actors have signed.
func (q *CountQuorum) Satisfied(signatures []*Signature) (bool, error) {
	if q.MinSigners <= 0 {
		return false, fmt.Errorf("count quorum requires a positive signer count")
	}

	actors := make(map[string]bool)
	for _, sig := range signatures {
		actors[sig.ActorID] = true
	}
	return len(actors) >= q.MinSigners, nil
}
