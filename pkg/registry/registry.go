package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"provost-hq/provost/pkg/rules"
)

// Registry is the policy authoring and lookup service.
type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a registry backed by the given store.
func New(store Store) *Registry {
	return &Registry{
		store:  store,
		logger: slog.Default().With("component", "registry"),
		now:    time.Now,
	}
}

// CreatePolicy registers a new policy. The first rule set arrives via
// CreateVersion.
func (r *Registry) CreatePolicy(ctx context.Context, name string, scope Scope, targetID, ownerRole string) (*Policy, error) {
	if name == "" {
		return nil, &ValidationError{Reason: "policy name is required"}
	}
	if !scope.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown scope %q", scope)}
	}
	if targetID == "" {
		return nil, &ValidationError{Reason: "scope target is required"}
	}

	p := &Policy{
		ID:        uuid.New().String(),
		Name:      name,
		Scope:     scope,
		TargetID:  targetID,
		OwnerRole: ownerRole,
		CreatedAt: r.now(),
	}

	if err := r.store.PutPolicy(ctx, p); err != nil {
		return nil, err
	}

	r.logger.Info("policy created",
		"policy_id", p.ID,
		"name", name,
		"scope", string(scope),
		"target", targetID,
	)

	return p, nil
}

// CreateVersion appends an immutable rule set as the next version of a
// policy. The requested number must be exactly (current max + 1); any
// other number is rejected so concurrent authors cannot silently fork
// the version history.
func (r *Registry) CreateVersion(ctx context.Context, policyID string, number int, level EnforcementLevel, ruleSet *rules.RuleSet, createdBy, changeNote string) (*Version, error) {
	if !level.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown enforcement level %q", level)}
	}
	if ruleSet == nil {
		return nil, &ValidationError{Reason: "rule set is required"}
	}
	if err := ruleSet.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.store.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}

	max, err := r.store.MaxVersionNumber(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if number != max+1 {
		return nil, &VersionConflictError{
			PolicyID:  policyID,
			Requested: number,
			Expected:  max + 1,
		}
	}

	v := &Version{
		ID:         uuid.New().String(),
		PolicyID:   policyID,
		Number:     number,
		Level:      level,
		Rules:      ruleSet,
		CreatedBy:  createdBy,
		ChangeNote: changeNote,
		CreatedAt:  r.now(),
	}

	if err := r.store.PutVersion(ctx, v); err != nil {
		return nil, err
	}

	r.logger.Info("policy version created",
		"policy_id", policyID,
		"version_id", v.ID,
		"number", number,
		"level", string(level),
	)

	return v, nil
}

// GetVersion returns a policy version by id.
func (r *Registry) GetVersion(ctx context.Context, id string) (*Version, error) {
	return r.store.GetVersion(ctx, id)
}

// GetPolicy returns a policy by id.
func (r *Registry) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return r.store.GetPolicy(ctx, id)
}

// FindPolicy returns the policy with the given name under a scope
// target, or a NotFoundError.
func (r *Registry) FindPolicy(ctx context.Context, scope Scope, targetID, name string) (*Policy, error) {
	policies, err := r.store.PoliciesByTarget(ctx, scope, targetID)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &NotFoundError{Kind: "policy", ID: name}
}

// LatestVersion returns the newest version of a policy as of now.
func (r *Registry) LatestVersion(ctx context.Context, policyID string) (*Version, error) {
	return r.store.LatestVersionAt(ctx, policyID, r.now())
}

// NextVersionNumber returns the number the next version of a policy must
// carry. Used by callers that construct versions from simulations.
func (r *Registry) NextVersionNumber(ctx context.Context, policyID string) (int, error) {
	max, err := r.store.MaxVersionNumber(ctx, policyID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
