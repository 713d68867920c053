package registry

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Resolved is one policy version selected for a change, with the
// resolution context audit queries need.
type Resolved struct {
	// Policy is the resolved policy.
	Policy *Policy

	// Version is the version active at the snapshot time.
	Version *Version

	// TriggerPath is the changed path that made the policy applicable,
	// empty when the policy has no path restrictions.
	TriggerPath string
}

// Resolve returns the policy versions applicable to a change, combining
// org- and repo-scoped policies active at the snapshot time and
// filtering by changed paths. The output order is deterministic
// (sorted by policy id) so repeated evaluations see identical input.
func (r *Registry) Resolve(ctx context.Context, orgID, repoID string, changedPaths []string, at time.Time) ([]*Resolved, error) {
	normalized := make([]string, len(changedPaths))
	for i, p := range changedPaths {
		normalized[i] = normalizePath(p)
	}

	var candidates []*Resolved

	for _, lookup := range []struct {
		scope  Scope
		target string
	}{
		{ScopeOrg, orgID},
		{ScopeRepo, repoID},
	} {
		if lookup.target == "" {
			continue
		}
		policies, err := r.store.PoliciesByTarget(ctx, lookup.scope, lookup.target)
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			v, err := r.store.LatestVersionAt(ctx, p.ID, at)
			if err != nil {
				// A policy without an active version at snapshot time
				// simply does not apply.
				if _, ok := err.(*NotFoundError); ok {
					continue
				}
				return nil, err
			}

			trigger, applicable := matchPaths(v, normalized)
			if !applicable {
				continue
			}
			candidates = append(candidates, &Resolved{Policy: p, Version: v, TriggerPath: trigger})
		}
	}

	return resolveConflicts(candidates), nil
}

// normalizePath converts a raw changed path to the canonical matching
// form: forward slashes, no leading "./", lowercase.
func normalizePath(p string) string {
	n := strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	n = strings.TrimPrefix(n, "./")
	return strings.ToLower(n)
}

// matchPaths checks the version's include/exclude path patterns against
// the normalized changed paths. A version with no include patterns
// applies to every change.
func matchPaths(v *Version, changedPaths []string) (string, bool) {
	include := v.Rules.IncludePaths
	exclude := v.Rules.ExcludePaths

	if len(include) == 0 && len(exclude) == 0 {
		return "", true
	}

	includeNorm := make([]string, len(include))
	for i, p := range include {
		includeNorm[i] = normalizePath(p)
	}
	excludeNorm := make([]string, len(exclude))
	for i, p := range exclude {
		excludeNorm[i] = normalizePath(p)
	}

	for _, path := range changedPaths {
		included := len(includeNorm) == 0
		for _, pattern := range includeNorm {
			if pathMatches(path, pattern) {
				included = true
				break
			}
		}
		if !included {
			continue
		}

		excluded := false
		for _, pattern := range excludeNorm {
			if pathMatches(path, pattern) {
				excluded = true
				break
			}
		}
		if !excluded {
			return path, true
		}
	}

	return "", false
}

// pathMatches applies the deterministic pattern forms: "*" matches
// everything, "dir/*" matches by prefix, anything else matches exactly.
func pathMatches(path, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return path == pattern
}

// resolveConflicts deduplicates candidates per policy and orders the
// result deterministically: org scope beats repo scope, stricter level
// beats looser, policy id breaks remaining ties.
func resolveConflicts(candidates []*Resolved) []*Resolved {
	byPolicy := make(map[string]*Resolved)

	for _, c := range candidates {
		existing, ok := byPolicy[c.Policy.ID]
		if !ok {
			byPolicy[c.Policy.ID] = c
			continue
		}

		if c.Policy.Scope == ScopeOrg && existing.Policy.Scope == ScopeRepo {
			byPolicy[c.Policy.ID] = c
			continue
		}
		if c.Policy.Scope == existing.Policy.Scope {
			if c.Version.Level.strictness() > existing.Version.Level.strictness() {
				byPolicy[c.Policy.ID] = c
			}
		}
	}

	out := make([]*Resolved, 0, len(byPolicy))
	for _, c := range byPolicy {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Policy.ID < out[j].Policy.ID
	})
	return out
}
