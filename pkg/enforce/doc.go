// Package enforce shapes finalized decisions into the report handed to
// the external check-reporting collaborator, and computes the effective
// enforcement result once overrides and revocations are taken into
// account.
package enforce
