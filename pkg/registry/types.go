package registry

import (
	"context"
	"time"

	"provost-hq/provost/pkg/rules"
)

// Scope identifies what a policy is attached to.
type Scope string

const (
	// ScopeOrg attaches a policy to an organization.
	ScopeOrg Scope = "ORG"

	// ScopeRepo attaches a policy to a single repository.
	ScopeRepo Scope = "REPO"
)

// Valid reports whether the scope is a known variant.
func (s Scope) Valid() bool {
	return s == ScopeOrg || s == ScopeRepo
}

// EnforcementLevel controls how a failing rule set is interpreted.
type EnforcementLevel string

const (
	// LevelMandatory blocks the change on failure; overrides require an
	// explicitly permissive quorum configuration.
	LevelMandatory EnforcementLevel = "MANDATORY"

	// LevelOverridable warns on failure and may be bypassed by an
	// approved override.
	LevelOverridable EnforcementLevel = "OVERRIDABLE"

	// LevelAdvisory warns on failure and never blocks.
	LevelAdvisory EnforcementLevel = "ADVISORY"
)

// Valid reports whether the level is a known variant.
func (l EnforcementLevel) Valid() bool {
	switch l {
	case LevelMandatory, LevelOverridable, LevelAdvisory:
		return true
	}
	return false
}

// strictness orders enforcement levels for conflict resolution.
func (l EnforcementLevel) strictness() int {
	switch l {
	case LevelMandatory:
		return 3
	case LevelOverridable:
		return 2
	case LevelAdvisory:
		return 1
	}
	return 0
}

// Policy is a named governance rule family scoped to an organization or
// repository. Policies are created once and evolve only through new
// versions.
type Policy struct {
	// ID is the policy identifier (UUID v4).
	ID string `json:"id"`

	// Name is the human-readable policy name, unique per target.
	Name string `json:"name"`

	// Scope is ORG or REPO.
	Scope Scope `json:"scope"`

	// TargetID identifies the org or repository the policy governs.
	TargetID string `json:"target_id"`

	// OwnerRole is the role authorized to create new versions.
	OwnerRole string `json:"owner_role"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`
}

// Version is one immutable rule set of a policy. Once created, the rule
// logic is never edited; a change always creates version N+1.
type Version struct {
	// ID is the version identifier (UUID v4).
	ID string `json:"id"`

	// PolicyID references the owning policy.
	PolicyID string `json:"policy_id"`

	// Number is the strictly increasing version number, unique per policy.
	Number int `json:"number"`

	// Level is the enforcement level reinterpreting rule failures.
	Level EnforcementLevel `json:"level"`

	// Rules is the immutable rule logic.
	Rules *rules.RuleSet `json:"rules"`

	// CreatedBy is the actor that created the version.
	CreatedBy string `json:"created_by"`

	// ChangeNote is the free-text change description.
	ChangeNote string `json:"change_note"`

	// CreatedAt is when the version was created.
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence interface for policies and versions.
type Store interface {
	// PutPolicy persists a new policy.
	PutPolicy(ctx context.Context, p *Policy) error

	// GetPolicy returns a policy by id.
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// PoliciesByTarget returns all policies for a scope target.
	PoliciesByTarget(ctx context.Context, scope Scope, targetID string) ([]*Policy, error)

	// PutVersion persists a new version. Implementations must reject a
	// duplicate (policy, number) pair.
	PutVersion(ctx context.Context, v *Version) error

	// GetVersion returns a version by id.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// MaxVersionNumber returns the highest version number recorded for a
	// policy, or 0 when the policy has no versions.
	MaxVersionNumber(ctx context.Context, policyID string) (int, error)

	// LatestVersionAt returns the newest version of a policy created at
	// or before the given time, or a NotFoundError when none exists.
	LatestVersionAt(ctx context.Context, policyID string, at time.Time) (*Version, error)
}
