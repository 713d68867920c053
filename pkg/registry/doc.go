// Package registry holds governance policies and their immutable,
// monotonically versioned rule sets, and resolves which versions apply
// to a given change at evaluation time.
//
// A policy is created once; its rule logic only ever changes by creating
// version N+1. Resolution combines organization- and repository-scoped
// policies, filters by changed paths, and applies deterministic conflict
// resolution so that two evaluations of the same inputs always see the
// same policy set in the same order.
package registry
