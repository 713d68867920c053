package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"provost-hq/provost/pkg/govmetrics"
)

// SQLite implements govmetrics.Store with durable SQLite storage. It is
// intentionally separate from the primary governance database: derived
// metrics are rebuildable, so losing this file is an inconvenience, not
// an incident.
type SQLite struct {
	db *sql.DB
}

// SQLiteConfig configures the metrics store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLite opens the metrics database, creating the schema if needed.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metrics schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_events (
		event_id TEXT PRIMARY KEY,
		processed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS policy_metrics (
		policy_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		total_evaluations INTEGER NOT NULL DEFAULT 0,
		total_blocks INTEGER NOT NULL DEFAULT 0,
		total_overrides INTEGER NOT NULL DEFAULT 0,
		challenge_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (policy_id, version_id)
	);

	CREATE TABLE IF NOT EXISTS governance_signals (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		signal_level TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_target ON governance_signals(target_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Apply inserts the event id and upserts the counter row in a single
// transaction. A duplicate event id rolls back without touching the
// counters.
func (s *SQLite) Apply(ctx context.Context, eventID, policyID, versionID string, delta govmetrics.Delta) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin apply transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, fmt.Errorf("record event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_metrics (policy_id, version_id, total_evaluations, total_blocks,
			total_overrides, challenge_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id, version_id) DO UPDATE SET
			total_evaluations = total_evaluations + excluded.total_evaluations,
			total_blocks = total_blocks + excluded.total_blocks,
			total_overrides = total_overrides + excluded.total_overrides,
			challenge_count = challenge_count + excluded.challenge_count,
			updated_at = excluded.updated_at`,
		policyID, versionID, delta.Evaluations, delta.Blocks,
		delta.Overrides, delta.Challenges, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("apply metric delta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit apply transaction: %w", err)
	}
	return true, nil
}

// Metric returns the counter row, zero-valued when absent.
func (s *SQLite) Metric(ctx context.Context, policyID, versionID string) (*govmetrics.Metric, error) {
	row := s.db.QueryRowContext(ctx, selectMetric+` WHERE policy_id = ? AND version_id = ?`,
		policyID, versionID)
	m, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return &govmetrics.Metric{PolicyID: policyID, VersionID: versionID}, nil
	}
	return m, err
}

// MetricsForPolicy returns every version row for a policy.
func (s *SQLite) MetricsForPolicy(ctx context.Context, policyID string) ([]*govmetrics.Metric, error) {
	rows, err := s.db.QueryContext(ctx, selectMetric+` WHERE policy_id = ? ORDER BY version_id ASC`, policyID)
	if err != nil {
		return nil, fmt.Errorf("query policy metrics: %w", err)
	}
	defer rows.Close()

	var out []*govmetrics.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PutSignal stores a derived signal.
func (s *SQLite) PutSignal(ctx context.Context, sig *govmetrics.Signal) error {
	metadata, err := json.Marshal(sig.Metadata)
	if err != nil {
		return fmt.Errorf("marshal signal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO governance_signals (id, type, target_id, signal_level, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sig.ID, string(sig.Type), sig.TargetID, string(sig.Level), string(metadata), sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// SignalsForTarget returns signals for a target, newest first.
func (s *SQLite) SignalsForTarget(ctx context.Context, targetID string, limit int) ([]*govmetrics.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, target_id, signal_level, metadata, created_at
		FROM governance_signals
		WHERE target_id = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*govmetrics.Signal
	for rows.Next() {
		var (
			sig      govmetrics.Signal
			sigType  string
			level    string
			metadata string
		)
		if err := rows.Scan(&sig.ID, &sigType, &sig.TargetID, &level, &metadata, &sig.CreatedAt); err != nil {
			return nil, err
		}
		sig.Type = govmetrics.SignalType(sigType)
		sig.Level = govmetrics.SignalLevel(level)
		if err := json.Unmarshal([]byte(metadata), &sig.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal signal metadata: %w", err)
		}
		out = append(out, &sig)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const selectMetric = `
	SELECT policy_id, version_id, total_evaluations, total_blocks,
		total_overrides, challenge_count, updated_at
	FROM policy_metrics`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetric(row rowScanner) (*govmetrics.Metric, error) {
	var m govmetrics.Metric
	err := row.Scan(&m.PolicyID, &m.VersionID, &m.TotalEvaluations, &m.TotalBlocks,
		&m.TotalOverrides, &m.ChallengeCount, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
