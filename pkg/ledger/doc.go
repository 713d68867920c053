// Package ledger is the append-only decision record. Every evaluation
// outcome lands here as a PENDING row, is finalized exactly once, and is
// physically immutable afterwards: changed circumstances produce a new
// chained row via Amend, never an edit. Immutability is enforced by the
// store's state transition, not by caller discipline.
package ledger
