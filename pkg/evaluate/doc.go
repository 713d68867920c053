// Package evaluate is the deterministic evaluation engine. It applies a
// policy version's rule set to a fact snapshot and produces a verdict,
// a rationale, and an integrity hash. Evaluation reads no clock and no
// external state: the same version and snapshot always produce the
// byte-identical outcome, which is what makes decisions replayable.
package evaluate
