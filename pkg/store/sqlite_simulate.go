package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"provost-hq/provost/pkg/rules"
	"provost-hq/provost/pkg/simulate"
)

// PutSimulation inserts a simulation row.
func (s *SQLite) PutSimulation(ctx context.Context, sim *simulate.Simulation) error {
	draft, ids, results, err := marshalSimulation(sim)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulations (id, policy_id, hash, draft_rules, engine_version,
			strategy, sample_size, snapshot_ids, status, results,
			failed_snapshot_id, failure_reason, created_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID, sim.PolicyID, sim.Hash, draft, sim.EngineVersion,
		string(sim.Strategy), sim.SampleSize, ids, string(sim.Status), results,
		sim.FailedSnapshotID, sim.FailureReason, sim.CreatedBy, sim.CreatedAt, nullableTime(sim.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	return nil
}

// GetSimulation returns a simulation by id.
func (s *SQLite) GetSimulation(ctx context.Context, id string) (*simulate.Simulation, error) {
	row := s.db.QueryRowContext(ctx, selectSimulation+` WHERE id = ?`, id)
	sim, err := scanSimulation(row)
	if err == sql.ErrNoRows {
		return nil, &simulate.NotFoundError{ID: id}
	}
	return sim, err
}

// UpdateSimulation replaces a simulation row.
func (s *SQLite) UpdateSimulation(ctx context.Context, sim *simulate.Simulation) error {
	draft, ids, results, err := marshalSimulation(sim)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE simulations SET policy_id = ?, hash = ?, draft_rules = ?, engine_version = ?,
			strategy = ?, sample_size = ?, snapshot_ids = ?, status = ?, results = ?,
			failed_snapshot_id = ?, failure_reason = ?, completed_at = ?
		WHERE id = ?`,
		sim.PolicyID, sim.Hash, draft, sim.EngineVersion,
		string(sim.Strategy), sim.SampleSize, ids, string(sim.Status), results,
		sim.FailedSnapshotID, sim.FailureReason, nullableTime(sim.CompletedAt), sim.ID,
	)
	if err != nil {
		return fmt.Errorf("update simulation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update simulation rows: %w", err)
	}
	if affected == 0 {
		return &simulate.NotFoundError{ID: sim.ID}
	}
	return nil
}

// CompletedByHash returns the COMPLETED simulation with the given hash.
func (s *SQLite) CompletedByHash(ctx context.Context, hash string) (*simulate.Simulation, error) {
	row := s.db.QueryRowContext(ctx, selectSimulation+`
		WHERE hash = ? AND status = 'COMPLETED' ORDER BY created_at DESC LIMIT 1`, hash)
	sim, err := scanSimulation(row)
	if err == sql.ErrNoRows {
		return nil, &simulate.NotFoundError{ID: hash}
	}
	return sim, err
}

const selectSimulation = `
	SELECT id, policy_id, hash, draft_rules, engine_version,
		strategy, sample_size, snapshot_ids, status, results,
		failed_snapshot_id, failure_reason, created_by, created_at, completed_at
	FROM simulations`

func marshalSimulation(sim *simulate.Simulation) (draft, ids string, results interface{}, err error) {
	draftBytes, err := json.Marshal(sim.DraftRules)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal draft rules: %w", err)
	}
	idBytes, err := json.Marshal(sim.SnapshotIDs)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal snapshot ids: %w", err)
	}
	if sim.Results == nil {
		return string(draftBytes), string(idBytes), nil, nil
	}
	resultBytes, err := json.Marshal(sim.Results)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal results: %w", err)
	}
	return string(draftBytes), string(idBytes), string(resultBytes), nil
}

func scanSimulation(row rowScanner) (*simulate.Simulation, error) {
	var (
		sim         simulate.Simulation
		draft       string
		strategy    string
		ids         string
		status      string
		results     sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&sim.ID, &sim.PolicyID, &sim.Hash, &draft, &sim.EngineVersion,
		&strategy, &sim.SampleSize, &ids, &status, &results,
		&sim.FailedSnapshotID, &sim.FailureReason, &sim.CreatedBy, &sim.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	var rs rules.RuleSet
	if err := json.Unmarshal([]byte(draft), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal draft rules: %w", err)
	}
	sim.DraftRules = &rs

	if err := json.Unmarshal([]byte(ids), &sim.SnapshotIDs); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot ids: %w", err)
	}

	sim.Strategy = simulate.Strategy(strategy)
	sim.Status = simulate.Status(status)

	if results.Valid && results.String != "" {
		var r simulate.Results
		if err := json.Unmarshal([]byte(results.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		sim.Results = &r
	}
	if completedAt.Valid {
		at := completedAt.Time
		sim.CompletedAt = &at
	}
	return &sim, nil
}
