// Package store provides the persistence backends for the governance
// core: an in-memory store for tests and ephemeral runs, and a SQLite
// store as the durable system of record. Both implement the Store
// interfaces declared by the domain packages (facts, registry, ledger,
// override, simulate), and both own the invariants those interfaces
// demand: the ledger's PENDING→FINAL compare-and-swap and the override
// signature+approval atomicity live here, not in callers.
package store
