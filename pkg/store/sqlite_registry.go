package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/rules"
)

// PutPolicy persists a policy.
func (s *SQLite) PutPolicy(ctx context.Context, p *registry.Policy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, scope, target_id, owner_role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Scope), p.TargetID, p.OwnerRole, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// GetPolicy returns a policy by id.
func (s *SQLite) GetPolicy(ctx context.Context, id string) (*registry.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, scope, target_id, owner_role, created_at
		FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, &registry.NotFoundError{Kind: "policy", ID: id}
	}
	return p, err
}

// PoliciesByTarget returns all policies for a scope target, ordered by
// id.
func (s *SQLite) PoliciesByTarget(ctx context.Context, scope registry.Scope, targetID string) ([]*registry.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scope, target_id, owner_role, created_at
		FROM policies WHERE scope = ? AND target_id = ? ORDER BY id ASC`,
		string(scope), targetID)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var out []*registry.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutVersion persists a version. The UNIQUE (policy_id, number)
// constraint rejects a duplicate pair at the database level.
func (s *SQLite) PutVersion(ctx context.Context, v *registry.Version) error {
	rulesJSON, err := json.Marshal(v.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_versions (id, policy_id, number, level, rules, created_by, change_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PolicyID, v.Number, string(v.Level), string(rulesJSON), v.CreatedBy, v.ChangeNote, v.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			max, maxErr := s.MaxVersionNumber(ctx, v.PolicyID)
			if maxErr != nil {
				return maxErr
			}
			return &registry.VersionConflictError{PolicyID: v.PolicyID, Requested: v.Number, Expected: max + 1}
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// GetVersion returns a version by id.
func (s *SQLite) GetVersion(ctx context.Context, id string) (*registry.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy_id, number, level, rules, created_by, change_note, created_at
		FROM policy_versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, &registry.NotFoundError{Kind: "version", ID: id}
	}
	return v, err
}

// MaxVersionNumber returns the highest version number for a policy, 0
// when none exist.
func (s *SQLite) MaxVersionNumber(ctx context.Context, policyID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(number) FROM policy_versions WHERE policy_id = ?`, policyID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	return int(max.Int64), nil
}

// LatestVersionAt returns the newest version of a policy created at or
// before the given time.
func (s *SQLite) LatestVersionAt(ctx context.Context, policyID string, at time.Time) (*registry.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy_id, number, level, rules, created_by, change_note, created_at
		FROM policy_versions
		WHERE policy_id = ? AND created_at <= ?
		ORDER BY number DESC LIMIT 1`, policyID, at)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, &registry.NotFoundError{Kind: "version", ID: policyID}
	}
	return v, err
}

func scanPolicy(row rowScanner) (*registry.Policy, error) {
	var (
		p     registry.Policy
		scope string
	)
	err := row.Scan(&p.ID, &p.Name, &scope, &p.TargetID, &p.OwnerRole, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Scope = registry.Scope(scope)
	return &p, nil
}

func scanVersion(row rowScanner) (*registry.Version, error) {
	var (
		v         registry.Version
		level     string
		rulesJSON string
	)
	err := row.Scan(&v.ID, &v.PolicyID, &v.Number, &level, &rulesJSON, &v.CreatedBy, &v.ChangeNote, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Level = registry.EnforcementLevel(level)

	var rs rules.RuleSet
	if err := json.Unmarshal([]byte(rulesJSON), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	v.Rules = &rs
	return &v, nil
}
