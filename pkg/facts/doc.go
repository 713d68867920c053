// Package facts models immutable fact snapshots: frozen, deduplicated
// captures of everything the policy engine is allowed to know about one
// commit of one change.
//
// A snapshot is created once per (repository, commit) pair; re-ingesting
// the same pair returns the existing snapshot id. Snapshots are never
// mutated and never deleted in normal operation; they are the replay
// substrate for both live evaluation and simulation.
package facts
