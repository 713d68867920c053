// Package storage provides persistence backends for derived governance
// metrics and signals.
//
// Two backends are available: an in-memory store for tests and
// single-shot runs, and a SQLite store for deployments that need the
// dedup ledger and counters to survive restarts. Both apply the event
// dedup check and the counter increment atomically.
package storage
