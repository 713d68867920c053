// Package simulate replays draft rule sets against historical fact
// snapshots before anyone promotes them. A simulation is strictly
// read-only with respect to decisions and overrides; its product is a
// blast-radius report (outcome flips, projected rates, friction index)
// and, for a completed run, a promotion path to the next policy
// version. Identical simulations are deduplicated by content hash.
package simulate
