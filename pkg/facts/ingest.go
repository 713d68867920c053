package facts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Ingestor freezes change facts into versioned snapshots, deduplicating
// on (repository, commit). The collaborator that talks to the code host
// supplies the raw change data; the ingestor owns derivation and
// idempotency.
type Ingestor struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewIngestor creates a fact ingestor backed by the given store.
func NewIngestor(store Store) *Ingestor {
	return &Ingestor{
		store:  store,
		logger: slog.Default().With("component", "facts.ingestor"),
		now:    time.Now,
	}
}

// Ingest captures facts for one commit of one change. Re-ingesting an
// already-captured (repo, commit) pair is a no-op returning the existing
// snapshot.
func (in *Ingestor) Ingest(ctx context.Context, repo string, changeNumber int, commit string, pr PullRequest, files []FileChange) (*Snapshot, error) {
	if repo == "" || commit == "" {
		return nil, &ValidationError{Reason: "repository and commit are required"}
	}

	existing, err := in.store.GetSnapshotByRepoCommit(ctx, repo, commit)
	if err == nil {
		in.logger.Info("returning existing fact snapshot",
			"snapshot_id", existing.ID,
			"repo", repo,
			"commit", commit,
		)
		return existing, nil
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	ingestedAt := in.now()
	snap := &Snapshot{
		ID:            uuid.New().String(),
		Repo:          repo,
		ChangeNumber:  changeNumber,
		Commit:        commit,
		SchemaVersion: SchemaVersion,
		Data:          BuildPayload(pr, files, ingestedAt),
		IngestedAt:    ingestedAt,
	}

	if err := in.store.PutSnapshot(ctx, snap); err != nil {
		// A concurrent ingestion of the same pair may have won the race;
		// dedup still holds if we can read the winner back.
		if winner, getErr := in.store.GetSnapshotByRepoCommit(ctx, repo, commit); getErr == nil {
			return winner, nil
		}
		return nil, err
	}

	in.logger.Info("fact snapshot created",
		"snapshot_id", snap.ID,
		"repo", repo,
		"change_number", changeNumber,
		"commit", commit,
		"total_files", len(files),
	)

	return snap, nil
}
