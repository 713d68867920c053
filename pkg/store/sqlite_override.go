package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
)

// PutOverride inserts an override.
func (s *SQLite) PutOverride(ctx context.Context, o *override.Override) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overrides (id, subject_kind, subject_external_id, policy_version_id,
			category, status, ttl_hours, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Subject.Kind, o.Subject.ExternalID, o.PolicyVersionID,
		string(o.Category), string(o.Status), o.TTLHours, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	return nil
}

// GetOverride returns an override by id.
func (s *SQLite) GetOverride(ctx context.Context, id string) (*override.Override, error) {
	row := s.db.QueryRowContext(ctx, selectOverride+` WHERE id = ?`, id)
	o, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, &override.NotFoundError{Kind: "override", ID: id}
	}
	return o, err
}

// OverridesBySubject returns all overrides for a subject, newest first.
func (s *SQLite) OverridesBySubject(ctx context.Context, subject ledger.SubjectRef) ([]*override.Override, error) {
	rows, err := s.db.QueryContext(ctx, selectOverride+`
		WHERE subject_kind = ? AND subject_external_id = ?
		ORDER BY created_at DESC, id ASC`, subject.Kind, subject.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []*override.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AddSignature inserts a signature and, when the quorum predicate holds
// over all signatures including the new one, flips the override to
// APPROVED, all inside one transaction. There is no committed state
// where quorum is met but the override still reads PENDING.
func (s *SQLite) AddSignature(ctx context.Context, sig *override.Signature, quorum func([]*override.Signature) (bool, error)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin sign transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM overrides WHERE id = ?`, sig.OverrideID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, &override.NotFoundError{Kind: "override", ID: sig.OverrideID}
	}
	if err != nil {
		return false, fmt.Errorf("check override status: %w", err)
	}
	if override.Status(status) != override.StatusPending {
		return false, &override.InvalidStateError{
			OverrideID: sig.OverrideID,
			Status:     override.Status(status),
			Operation:  "sign",
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO override_signatures (id, override_id, actor_id, role_at_signing, justification, commit_sha, signed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.OverrideID, sig.ActorID, sig.RoleAtSigning, sig.Justification, sig.CommitSHA, sig.SignedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, &override.DuplicateSignatureError{OverrideID: sig.OverrideID, ActorID: sig.ActorID}
		}
		return false, fmt.Errorf("insert signature: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectSignature+`
		WHERE override_id = ? ORDER BY signed_at ASC, id ASC`, sig.OverrideID)
	if err != nil {
		return false, fmt.Errorf("query signatures: %w", err)
	}
	all, err := scanSignatures(rows)
	if err != nil {
		return false, err
	}

	satisfied, err := quorum(all)
	if err != nil {
		return false, err
	}
	if satisfied {
		if _, err := tx.ExecContext(ctx,
			`UPDATE overrides SET status = 'APPROVED' WHERE id = ? AND status = 'PENDING'`,
			sig.OverrideID); err != nil {
			return false, fmt.Errorf("approve override: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit sign transaction: %w", err)
	}
	return satisfied, nil
}

// SignaturesFor returns an override's signatures in signing order.
func (s *SQLite) SignaturesFor(ctx context.Context, overrideID string) ([]*override.Signature, error) {
	rows, err := s.db.QueryContext(ctx, selectSignature+`
		WHERE override_id = ? ORDER BY signed_at ASC, id ASC`, overrideID)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	return scanSignatures(rows)
}

// TransitionStatus moves an override between statuses as a
// compare-and-swap.
func (s *SQLite) TransitionStatus(ctx context.Context, id string, from, to override.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE overrides SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition override: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition override rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM overrides WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, &override.NotFoundError{Kind: "override", ID: id}
		}
		if err != nil {
			return false, fmt.Errorf("check override: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// ExpirePending transitions every PENDING override past its TTL to
// EXPIRED.
func (s *SQLite) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE overrides SET status = 'EXPIRED' WHERE status = 'PENDING' AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("expire overrides: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire overrides rows: %w", err)
	}
	return int(affected), nil
}

// PutRevocation inserts a revocation row. The UNIQUE constraint keeps
// one revocation per override.
func (s *SQLite) PutRevocation(ctx context.Context, r *override.Revocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO override_revocations (id, override_id, actor_id, reason, revoked_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.OverrideID, r.ActorID, r.Reason, r.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", err)
	}
	return nil
}

// RevocationFor returns the revocation for an override.
func (s *SQLite) RevocationFor(ctx context.Context, overrideID string) (*override.Revocation, error) {
	var r override.Revocation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, override_id, actor_id, reason, revoked_at
		FROM override_revocations WHERE override_id = ?`, overrideID).
		Scan(&r.ID, &r.OverrideID, &r.ActorID, &r.Reason, &r.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, &override.NotFoundError{Kind: "revocation", ID: overrideID}
	}
	if err != nil {
		return nil, fmt.Errorf("query revocation: %w", err)
	}
	return &r, nil
}

const selectOverride = `
	SELECT id, subject_kind, subject_external_id, policy_version_id,
		category, status, ttl_hours, created_at, expires_at
	FROM overrides`

const selectSignature = `
	SELECT id, override_id, actor_id, role_at_signing, justification, commit_sha, signed_at
	FROM override_signatures`

func scanOverride(row rowScanner) (*override.Override, error) {
	var (
		o        override.Override
		category string
		status   string
	)
	err := row.Scan(&o.ID, &o.Subject.Kind, &o.Subject.ExternalID, &o.PolicyVersionID,
		&category, &status, &o.TTLHours, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return nil, err
	}
	o.Category = override.Category(category)
	o.Status = override.Status(status)
	return &o, nil
}

func scanSignatures(rows *sql.Rows) ([]*override.Signature, error) {
	defer rows.Close()
	var out []*override.Signature
	for rows.Next() {
		var sig override.Signature
		err := rows.Scan(&sig.ID, &sig.OverrideID, &sig.ActorID, &sig.RoleAtSigning,
			&sig.Justification, &sig.CommitSHA, &sig.SignedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &sig)
	}
	return out, rows.Err()
}
