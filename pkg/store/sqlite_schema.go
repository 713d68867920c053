package store

// schemaVersion is the current database schema version.
const schemaVersion = 1

// schema creates the governance tables. The decisions trigger is the
// structural immutability guarantee: a FINAL row rejects every update
// at the database level, regardless of which process or code path
// attempts it.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    repo TEXT NOT NULL,
    change_number INTEGER NOT NULL,
    commit_sha TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    data TEXT NOT NULL,
    ingested_at TIMESTAMP NOT NULL,
    UNIQUE (repo, commit_sha)
);

CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    scope TEXT NOT NULL,
    target_id TEXT NOT NULL,
    owner_role TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_versions (
    id TEXT PRIMARY KEY,
    policy_id TEXT NOT NULL REFERENCES policies(id),
    number INTEGER NOT NULL,
    level TEXT NOT NULL,
    rules TEXT NOT NULL,
    created_by TEXT,
    change_note TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (policy_id, number)
);

CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    subject_kind TEXT NOT NULL,
    subject_external_id TEXT NOT NULL,
    policy_version_id TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    result TEXT NOT NULL,
    rationale TEXT,
    integrity_hash TEXT NOT NULL,
    engine_version TEXT NOT NULL,
    status TEXT NOT NULL,
    previous_id TEXT,
    override_id TEXT,
    created_at TIMESTAMP NOT NULL,
    finalized_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS overrides (
    id TEXT PRIMARY KEY,
    subject_kind TEXT NOT NULL,
    subject_external_id TEXT NOT NULL,
    policy_version_id TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL,
    ttl_hours INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS override_signatures (
    id TEXT PRIMARY KEY,
    override_id TEXT NOT NULL REFERENCES overrides(id),
    actor_id TEXT NOT NULL,
    role_at_signing TEXT,
    justification TEXT NOT NULL,
    commit_sha TEXT,
    signed_at TIMESTAMP NOT NULL,
    UNIQUE (override_id, actor_id)
);

CREATE TABLE IF NOT EXISTS override_revocations (
    id TEXT PRIMARY KEY,
    override_id TEXT NOT NULL UNIQUE REFERENCES overrides(id),
    actor_id TEXT NOT NULL,
    reason TEXT,
    revoked_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS simulations (
    id TEXT PRIMARY KEY,
    policy_id TEXT NOT NULL,
    hash TEXT NOT NULL,
    draft_rules TEXT NOT NULL,
    engine_version TEXT NOT NULL,
    strategy TEXT NOT NULL,
    sample_size INTEGER NOT NULL,
    snapshot_ids TEXT NOT NULL,
    status TEXT NOT NULL,
    results TEXT,
    failed_snapshot_id TEXT,
    failure_reason TEXT,
    created_by TEXT,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_repo ON snapshots(repo);
CREATE INDEX IF NOT EXISTS idx_snapshots_ingested_at ON snapshots(ingested_at);
CREATE INDEX IF NOT EXISTS idx_policies_target ON policies(scope, target_id);
CREATE INDEX IF NOT EXISTS idx_versions_policy ON policy_versions(policy_id);
CREATE INDEX IF NOT EXISTS idx_decisions_subject ON decisions(subject_kind, subject_external_id);
CREATE INDEX IF NOT EXISTS idx_decisions_snapshot ON decisions(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_overrides_subject ON overrides(subject_kind, subject_external_id);
CREATE INDEX IF NOT EXISTS idx_simulations_hash ON simulations(hash);

CREATE TRIGGER IF NOT EXISTS protect_final_decisions
BEFORE UPDATE ON decisions
FOR EACH ROW WHEN OLD.status = 'FINAL'
BEGIN
    SELECT RAISE(ABORT, 'decision is FINAL and immutable');
END;

CREATE TRIGGER IF NOT EXISTS protect_final_decisions_delete
BEFORE DELETE ON decisions
FOR EACH ROW WHEN OLD.status = 'FINAL'
BEGIN
    SELECT RAISE(ABORT, 'decision is FINAL and immutable');
END;
`

// insertSchemaVersion records the schema version on first open.
const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// getSchemaVersion reads the newest recorded schema version.
const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
