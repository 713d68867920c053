package simulate

import "fmt"

// NotFoundError indicates a simulation lookup missed.
type NotFoundError struct {
	ID string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("simulation not found: %s", e.ID)
}

// ValidationError indicates malformed simulation input.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid simulation request: %s", e.Reason)
}

// SampleTooLargeError indicates a requested sample size beyond the
// configured cap.
type SampleTooLargeError struct {
	Requested int
	Cap       int
}

// Error returns the error message.
func (e *SampleTooLargeError) Error() string {
	return fmt.Sprintf("sample size %d exceeds cap %d", e.Requested, e.Cap)
}

// InvalidStateError indicates an operation against a simulation whose
// status does not accept it.
type InvalidStateError struct {
	ID        string
	Status    Status
	Operation string
}

// Error returns the error message.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("simulation %s is %s, cannot %s", e.ID, e.Status, e.Operation)
}
