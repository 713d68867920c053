package ledger

import "fmt"

// NotFoundError indicates a decision lookup missed.
type NotFoundError struct {
	ID string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("decision not found: %s", e.ID)
}

// ImmutableRecordError indicates an attempted write to a FINAL decision.
type ImmutableRecordError struct {
	ID string
}

// Error returns the error message.
func (e *ImmutableRecordError) Error() string {
	return fmt.Sprintf("decision %s is FINAL and cannot be modified", e.ID)
}

// ValidationError indicates malformed ledger input.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decision: %s", e.Reason)
}
