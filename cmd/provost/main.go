// Provost is a policy enforcement core for pull request governance.
//
// It evaluates change facts against versioned policy rule sets, records
// every verdict in an append-only decision ledger, and governs human
// bypasses through a quorum-signed override workflow. Draft policies
// can be dry-run against historical snapshots before promotion.
//
// Usage:
//
//	# Start the service with default configuration
//	provost run
//
//	# Start with a custom configuration file
//	provost run --config /etc/provost/provost.yaml
//
//	# Validate configuration and policy bundle without starting
//	provost validate --bundle ./policies
//
//	# Show version information
//	provost version
package main

func main() {
	Execute()
}
