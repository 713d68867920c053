package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/ledger"
)

// PutDecision inserts a decision row.
func (s *SQLite) PutDecision(ctx context.Context, d *ledger.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, subject_kind, subject_external_id, policy_version_id, snapshot_id,
			result, rationale, integrity_hash, engine_version, status,
			previous_id, override_id, created_at, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Subject.Kind, d.Subject.ExternalID, d.PolicyVersionID, d.SnapshotID,
		string(d.Result), d.Rationale, d.IntegrityHash, d.EngineVersion, string(d.Status),
		d.PreviousID, d.OverrideID, d.CreatedAt, nullableTime(d.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetDecision returns a decision by id.
func (s *SQLite) GetDecision(ctx context.Context, id string) (*ledger.Decision, error) {
	row := s.db.QueryRowContext(ctx, selectDecision+` WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{ID: id}
	}
	return d, err
}

// UpdateDecision replaces a PENDING decision's mutable fields. The
// WHERE clause is the guard; a FINAL row matches nothing and the write
// is rejected. The schema trigger backs this up against any other
// writer.
func (s *SQLite) UpdateDecision(ctx context.Context, d *ledger.Decision) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET
			result = ?, rationale = ?, integrity_hash = ?, engine_version = ?,
			policy_version_id = ?, snapshot_id = ?, override_id = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(d.Result), d.Rationale, d.IntegrityHash, d.EngineVersion,
		d.PolicyVersionID, d.SnapshotID, d.OverrideID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update decision rows: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM decisions WHERE id = ?`, d.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return &ledger.NotFoundError{ID: d.ID}
		}
		if err != nil {
			return fmt.Errorf("check decision status: %w", err)
		}
		return &ledger.ImmutableRecordError{ID: d.ID}
	}
	return nil
}

// FinalizeDecision transitions PENDING→FINAL as a compare-and-swap: the
// UPDATE only matches a PENDING row, so of any number of concurrent
// finalizers exactly one observes the transition.
func (s *SQLite) FinalizeDecision(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET status = 'FINAL', finalized_at = ?
		WHERE id = ? AND status = 'PENDING'`, at, id)
	if err != nil {
		return false, fmt.Errorf("finalize decision: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize decision rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM decisions WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, &ledger.NotFoundError{ID: id}
	}
	if err != nil {
		return false, fmt.Errorf("check decision status: %w", err)
	}
	// Already FINAL: idempotent no-op.
	return false, nil
}

// DecisionsBySubject returns all decisions for a subject, newest first.
func (s *SQLite) DecisionsBySubject(ctx context.Context, subject ledger.SubjectRef) ([]*ledger.Decision, error) {
	rows, err := s.db.QueryContext(ctx, selectDecision+`
		WHERE subject_kind = ? AND subject_external_id = ?
		ORDER BY created_at DESC, id ASC`, subject.Kind, subject.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestDecisionForSnapshot returns the newest decision recorded
// against a snapshot.
func (s *SQLite) LatestDecisionForSnapshot(ctx context.Context, snapshotID string) (*ledger.Decision, error) {
	row := s.db.QueryRowContext(ctx, selectDecision+`
		WHERE snapshot_id = ? ORDER BY created_at DESC LIMIT 1`, snapshotID)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{ID: snapshotID}
	}
	return d, err
}

const selectDecision = `
	SELECT id, subject_kind, subject_external_id, policy_version_id, snapshot_id,
		result, rationale, integrity_hash, engine_version, status,
		previous_id, override_id, created_at, finalized_at
	FROM decisions`

func scanDecision(row rowScanner) (*ledger.Decision, error) {
	var (
		d           ledger.Decision
		result      string
		status      string
		previousID  sql.NullString
		overrideID  sql.NullString
		finalizedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Subject.Kind, &d.Subject.ExternalID, &d.PolicyVersionID, &d.SnapshotID,
		&result, &d.Rationale, &d.IntegrityHash, &d.EngineVersion, &status,
		&previousID, &overrideID, &d.CreatedAt, &finalizedAt)
	if err != nil {
		return nil, err
	}
	d.Result = evaluate.Result(result)
	d.Status = ledger.Status(status)
	d.PreviousID = previousID.String
	d.OverrideID = overrideID.String
	if finalizedAt.Valid {
		at := finalizedAt.Time
		d.FinalizedAt = &at
	}
	return &d, nil
}
