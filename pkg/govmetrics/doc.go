// Package govmetrics aggregates governance activity into derived
// per-policy-version counters and advisory trust signals.
//
// The aggregator is event driven and eventually consistent: it consumes
// finalized decisions and resolved overrides, applies idempotent
// increments keyed by the triggering event id, and derives signals from
// the accumulated counters. Nothing here is ever the system of record;
// every counter is rebuildable from the decision and override history.
package govmetrics
