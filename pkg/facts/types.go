package facts

import (
	"context"
	"strings"
	"time"
)

// SchemaVersion is the current fact payload schema version. Rule sets
// declare the schema range they were authored against; the evaluation
// engine refuses mismatches instead of producing a false pass.
const SchemaVersion = 1

// Snapshot is one immutable capture of change facts.
type Snapshot struct {
	// ID is the canonical snapshot identifier (UUID v4).
	ID string `json:"id"`

	// Repo is the repository identifier, e.g. "owner/repo".
	Repo string `json:"repo"`

	// ChangeNumber is the pull request number.
	ChangeNumber int `json:"change_number"`

	// Commit is the exact commit SHA the facts describe.
	Commit string `json:"commit"`

	// SchemaVersion is the payload schema version at ingestion time.
	SchemaVersion int `json:"schema_version"`

	// Data is the structured fact payload. It is stored as decoded JSON
	// so rule predicates can address fields by dot path.
	Data map[string]interface{} `json:"data"`

	// IngestedAt is when the snapshot was created.
	IngestedAt time.Time `json:"ingested_at"`
}

// Field resolves a dot path into the fact payload. Intermediate list
// values fan out: "changes.files.path" yields the list of all file
// paths. Returns false when any path segment is absent.
func (s *Snapshot) Field(path string) (interface{}, bool) {
	return resolvePath(s.Data, strings.Split(path, "."))
}

// resolvePath walks one path segment at a time through maps and lists.
func resolvePath(v interface{}, segments []string) (interface{}, bool) {
	if len(segments) == 0 {
		return v, true
	}

	switch val := v.(type) {
	case map[string]interface{}:
		next, ok := val[segments[0]]
		if !ok {
			return nil, false
		}
		return resolvePath(next, segments[1:])

	case []interface{}:
		// Fan out over list elements and collect resolved values.
		collected := make([]interface{}, 0, len(val))
		for _, elem := range val {
			resolved, ok := resolvePath(elem, segments)
			if !ok {
				continue
			}
			collected = append(collected, resolved)
		}
		if len(collected) == 0 {
			return nil, false
		}
		return collected, true

	default:
		return nil, false
	}
}

// Store is the persistence interface for fact snapshots. Implementations
// must be safe for unlimited concurrent readers.
type Store interface {
	// PutSnapshot persists a new snapshot.
	PutSnapshot(ctx context.Context, snap *Snapshot) error

	// GetSnapshot returns a snapshot by id.
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)

	// GetSnapshotByRepoCommit returns the snapshot for a (repo, commit)
	// pair, or a NotFoundError when none exists.
	GetSnapshotByRepoCommit(ctx context.Context, repo, commit string) (*Snapshot, error)

	// RecentSnapshots returns up to limit snapshots, newest first.
	RecentSnapshots(ctx context.Context, limit int) ([]*Snapshot, error)

	// SnapshotsByRepo returns up to limit snapshots stratified across
	// distinct repositories, newest first within each repository.
	SnapshotsByRepo(ctx context.Context, limit int) ([]*Snapshot, error)

	// RiskySnapshots returns up to limit snapshots weighted toward those
	// whose historical decisions were BLOCK or carried overrides.
	RiskySnapshots(ctx context.Context, limit int) ([]*Snapshot, error)
}
