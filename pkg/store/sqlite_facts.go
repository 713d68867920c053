package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"provost-hq/provost/pkg/facts"
)

// PutSnapshot persists a snapshot.
func (s *SQLite) PutSnapshot(ctx context.Context, snap *facts.Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, repo, change_number, commit_sha, schema_version, data, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Repo, snap.ChangeNumber, snap.Commit, snap.SchemaVersion, string(data), snap.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot by id.
func (s *SQLite) GetSnapshot(ctx context.Context, id string) (*facts.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo, change_number, commit_sha, schema_version, data, ingested_at
		FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, &facts.NotFoundError{Key: id}
	}
	return snap, err
}

// GetSnapshotByRepoCommit returns the snapshot for a (repo, commit)
// pair.
func (s *SQLite) GetSnapshotByRepoCommit(ctx context.Context, repo, commit string) (*facts.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo, change_number, commit_sha, schema_version, data, ingested_at
		FROM snapshots WHERE repo = ? AND commit_sha = ?`, repo, commit)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, &facts.NotFoundError{Key: repo + "@" + commit}
	}
	return snap, err
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *SQLite) RecentSnapshots(ctx context.Context, limit int) ([]*facts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo, change_number, commit_sha, schema_version, data, ingested_at
		FROM snapshots ORDER BY ingested_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// SnapshotsByRepo returns up to limit snapshots stratified across
// repositories: every repository's newest snapshot first, then second
// newest, until the limit fills.
func (s *SQLite) SnapshotsByRepo(ctx context.Context, limit int) ([]*facts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo, change_number, commit_sha, schema_version, data, ingested_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY repo ORDER BY ingested_at DESC, id ASC) AS rank
			FROM snapshots
		) ORDER BY rank ASC, repo ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by repo: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// RiskySnapshots returns up to limit snapshots weighted toward risky
// history: snapshots with BLOCK decisions or override-linked decisions
// first, then recent snapshots fill the remainder.
func (s *SQLite) RiskySnapshots(ctx context.Context, limit int) ([]*facts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo, change_number, commit_sha, schema_version, data, ingested_at
		FROM snapshots
		ORDER BY
			(SELECT COUNT(*) FROM decisions d
			 WHERE d.snapshot_id = snapshots.id
			   AND (d.result = 'BLOCK' OR d.override_id IS NOT NULL AND d.override_id != '')) > 0 DESC,
			ingested_at DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query risky snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*facts.Snapshot, error) {
	var (
		snap facts.Snapshot
		data string
	)
	err := row.Scan(&snap.ID, &snap.Repo, &snap.ChangeNumber, &snap.Commit, &snap.SchemaVersion, &data, &snap.IngestedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &snap.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
	}
	return &snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]*facts.Snapshot, error) {
	var out []*facts.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// nullableTime converts an optional time for storage.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
