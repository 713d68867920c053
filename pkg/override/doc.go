// Package override implements the human bypass workflow: an override
// request accumulates signatures until a quorum policy is satisfied,
// then flips to APPROVED atomically with the deciding signature.
// Approved overrides stay on the record forever; revocation is a
// separate row consulted at enforcement time, never a status edit.
package override
