package facts

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeStore is a minimal in-memory Store for ingestor tests.
type fakeStore struct {
	mu    sync.Mutex
	byKey map[string]*Snapshot
	byID  map[string]*Snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byKey: make(map[string]*Snapshot),
		byID:  make(map[string]*Snapshot),
	}
}

func (s *fakeStore) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[snap.Repo+"@"+snap.Commit] = snap
	s.byID[snap.ID] = snap
	return nil
}

func (s *fakeStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.byID[id]; ok {
		return snap, nil
	}
	return nil, &NotFoundError{Key: id}
}

func (s *fakeStore) GetSnapshotByRepoCommit(ctx context.Context, repo, commit string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.byKey[repo+"@"+commit]; ok {
		return snap, nil
	}
	return nil, &NotFoundError{Key: repo + "@" + commit}
}

func (s *fakeStore) RecentSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	return nil, nil
}

func (s *fakeStore) SnapshotsByRepo(ctx context.Context, limit int) ([]*Snapshot, error) {
	return nil, nil
}

func (s *fakeStore) RiskySnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	return nil, nil
}

func TestIngest_Dedup(t *testing.T) {
	ingestor := NewIngestor(newFakeStore())
	ctx := context.Background()

	pr := PullRequest{Title: "add feature", Author: "alice", BaseBranch: "main"}
	files := []FileChange{{Path: "src/feature.go", Extension: ".go", Status: "added", Additions: 10}}

	first, err := ingestor.Ingest(ctx, "acme/widgets", 42, "abc123", pr, files)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	second, err := ingestor.Ingest(ctx, "acme/widgets", 42, "abc123", pr, files)
	if err != nil {
		t.Fatalf("Ingest() second error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("re-ingestion produced a new snapshot: %s vs %s", first.ID, second.ID)
	}

	// Different commit gets a new snapshot.
	third, err := ingestor.Ingest(ctx, "acme/widgets", 42, "def456", pr, files)
	if err != nil {
		t.Fatalf("Ingest() third error = %v", err)
	}
	if third.ID == first.ID {
		t.Error("new commit reused an existing snapshot id")
	}
}

func TestIngest_Validation(t *testing.T) {
	ingestor := NewIngestor(newFakeStore())

	_, err := ingestor.Ingest(context.Background(), "", 1, "", PullRequest{}, nil)
	if err == nil {
		t.Fatal("expected validation error for empty repo/commit")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestBuildPayload_Derivations(t *testing.T) {
	files := []FileChange{
		{Path: "src/auth/login.go", Extension: ".go", Status: "modified", Additions: 5, Deletions: 2},
		{Path: "src/auth/login_test.go", Extension: ".go", Status: "added", Additions: 30},
		{Path: "docs/readme.md", Extension: ".md", Status: "modified", Additions: 1},
	}

	data := BuildPayload(PullRequest{Title: "t", Author: "a", BaseBranch: "main"}, files, time.Unix(1700000000, 0))

	changes := data["changes"].(map[string]interface{})
	if changes["total_files"] != 3 {
		t.Errorf("total_files = %v, want 3", changes["total_files"])
	}
	if changes["additions"] != 36 {
		t.Errorf("additions = %v, want 36", changes["additions"])
	}

	meta := data["metadata"].(map[string]interface{})
	if meta["test_files_changed_count"] != 1 {
		t.Errorf("test_files_changed_count = %v, want 1", meta["test_files_changed_count"])
	}

	prefixes := meta["path_prefixes"].([]interface{})
	want := []string{"docs", "src", "src/auth"}
	if len(prefixes) != len(want) {
		t.Fatalf("path_prefixes = %v, want %v", prefixes, want)
	}
	for i, p := range want {
		if prefixes[i] != p {
			t.Errorf("path_prefixes[%d] = %v, want %v", i, prefixes[i], p)
		}
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"pkg/ledger/ledger_test.go", true},
		{"src/app.spec.ts", true},
		{"tests/helper.py", true},
		{"src/__tests__/render.js", true},
		{"src/main.go", false},
		{"attestation.go", false},
	}

	for _, tt := range tests {
		if got := IsTestFile(tt.path); got != tt.want {
			t.Errorf("IsTestFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSnapshot_Field(t *testing.T) {
	snap := &Snapshot{
		Data: BuildPayload(
			PullRequest{BaseBranch: "main", Labels: []string{"hotfix"}},
			[]FileChange{
				{Path: "auth/token.go", Extension: ".go"},
				{Path: "auth/session.go", Extension: ".go"},
			},
			time.Unix(1700000000, 0),
		),
	}

	if v, ok := snap.Field("pull_request.base_branch"); !ok || v != "main" {
		t.Errorf("Field(pull_request.base_branch) = %v, %v", v, ok)
	}

	if v, ok := snap.Field("changes.total_files"); !ok || v != 2 {
		t.Errorf("Field(changes.total_files) = %v, %v", v, ok)
	}

	// Fan-out through a list.
	v, ok := snap.Field("changes.files.path")
	if !ok {
		t.Fatal("Field(changes.files.path) not found")
	}
	paths := v.([]interface{})
	if len(paths) != 2 || paths[0] != "auth/token.go" {
		t.Errorf("changes.files.path = %v", paths)
	}

	if _, ok := snap.Field("changes.missing.path"); ok {
		t.Error("expected missing path to report not found")
	}
}
