package facts

import "fmt"

// NotFoundError indicates a snapshot lookup missed.
type NotFoundError struct {
	Key string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fact snapshot not found: %s", e.Key)
}

// ValidationError indicates malformed ingestion input.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid ingestion request: %s", e.Reason)
}
