package override

import "fmt"

// NotFoundError indicates an override or revocation lookup missed.
type NotFoundError struct {
	Kind string // "override" or "revocation"
	ID   string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError indicates malformed workflow input.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid override request: %s", e.Reason)
}

// DuplicateSignatureError indicates an actor attempting to sign the
// same override twice.
type DuplicateSignatureError struct {
	OverrideID string
	ActorID    string
}

// Error returns the error message.
func (e *DuplicateSignatureError) Error() string {
	return fmt.Sprintf("actor %s already signed override %s", e.ActorID, e.OverrideID)
}

// InvalidStateError indicates an operation against an override in a
// state that does not accept it.
type InvalidStateError struct {
	OverrideID string
	Status     Status
	Operation  string
}

// Error returns the error message.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("override %s is %s, cannot %s", e.OverrideID, e.Status, e.Operation)
}

// ExpiredOverrideError indicates an operation against an override whose
// TTL has elapsed.
type ExpiredOverrideError struct {
	OverrideID string
}

// Error returns the error message.
func (e *ExpiredOverrideError) Error() string {
	return fmt.Sprintf("override %s has expired", e.OverrideID)
}

// AlreadyActiveError indicates a request for a subject that already has
// a live override in flight or approved.
type AlreadyActiveError struct {
	Subject    string
	OverrideID string
}

// Error returns the error message.
func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("subject %s already has active override %s", e.Subject, e.OverrideID)
}
