package registry

import "fmt"

// NotFoundError indicates a policy or version lookup missed.
type NotFoundError struct {
	Kind string // "policy" or "version"
	ID   string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError indicates malformed authoring input.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy request: %s", e.Reason)
}

// VersionConflictError indicates a version creation request whose number
// is not exactly one past the current maximum for the policy.
type VersionConflictError struct {
	PolicyID  string
	Requested int
	Expected  int
}

// Error returns the error message.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("policy %s: version number %d rejected, next version must be %d",
		e.PolicyID, e.Requested, e.Expected)
}
