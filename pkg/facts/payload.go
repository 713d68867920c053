package facts

import (
	"sort"
	"strings"
	"time"
)

// PullRequest carries the change metadata supplied by the ingestion
// collaborator.
type PullRequest struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	BaseBranch string   `json:"base_branch"`
	Labels     []string `json:"labels"`
	IsDraft    bool     `json:"is_draft"`
}

// FileChange describes one changed file in the change.
type FileChange struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// BuildPayload assembles the schema-versioned fact payload from raw
// change data, computing the derived fields (test-file detection, path
// prefixes, totals) deterministically so that re-ingestion of the same
// input always yields an identical payload.
func BuildPayload(pr PullRequest, files []FileChange, ingestedAt time.Time) map[string]interface{} {
	totalAdditions := 0
	totalDeletions := 0
	testFiles := 0

	fileEntries := make([]interface{}, 0, len(files))
	for _, f := range files {
		isTest := IsTestFile(f.Path)
		if isTest {
			testFiles++
		}
		totalAdditions += f.Additions
		totalDeletions += f.Deletions

		fileEntries = append(fileEntries, map[string]interface{}{
			"path":         f.Path,
			"extension":    f.Extension,
			"status":       f.Status,
			"additions":    f.Additions,
			"deletions":    f.Deletions,
			"is_test_file": isTest,
		})
	}

	labels := make([]interface{}, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l)
	}

	return map[string]interface{}{
		"schema_version": SchemaVersion,
		"pull_request": map[string]interface{}{
			"title":       pr.Title,
			"author":      pr.Author,
			"base_branch": pr.BaseBranch,
			"labels":      labels,
			"is_draft":    pr.IsDraft,
		},
		"changes": map[string]interface{}{
			"total_files": len(files),
			"additions":   totalAdditions,
			"deletions":   totalDeletions,
			"files":       fileEntries,
		},
		"metadata": map[string]interface{}{
			"test_files_changed_count": testFiles,
			"path_prefixes":            pathPrefixes(files),
			"ingested_at":              ingestedAt.UTC().Format(time.RFC3339),
		},
	}
}

// IsTestFile reports whether a path looks like a test file by naming
// convention: test markers in the filename or a test directory anywhere
// in the path.
func IsTestFile(path string) bool {
	lower := strings.ToLower(path)

	for _, pattern := range []string{".test.", ".spec.", "_test.", "test_"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	for _, dir := range []string{"tests/", "test/", "__tests__/"} {
		if strings.HasPrefix(lower, dir) || strings.Contains(lower, "/"+dir) {
			return true
		}
	}

	return false
}

// pathPrefixes extracts the sorted set of unique directory prefixes from
// the changed file paths: "src/auth/login.go" yields "src" and
// "src/auth".
func pathPrefixes(files []FileChange) []interface{} {
	seen := make(map[string]struct{})
	for _, f := range files {
		parts := strings.Split(f.Path, "/")
		current := ""
		for i := 0; i < len(parts)-1; i++ {
			if parts[i] == "" {
				continue
			}
			if current == "" {
				current = parts[i]
			} else {
				current = current + "/" + parts[i]
			}
			seen[current] = struct{}{}
		}
	}

	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	out := make([]interface{}, len(prefixes))
	for i, p := range prefixes {
		out[i] = p
	}
	return out
}
