package rules

import "fmt"

// ValidationError indicates malformed rule logic: unknown operators,
// empty combinators, or an invalid schema range.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule logic: %s", e.Reason)
}

// EvalError indicates a leaf predicate could not be evaluated, usually a
// type mismatch between the rule value and the fact field.
type EvalError struct {
	Field    string
	Operator Operator
	Cause    error
}

// Error returns the error message.
func (e *EvalError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("predicate %s %s: %v", e.Field, e.Operator, e.Cause)
	}
	return fmt.Sprintf("predicate evaluation: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Cause
}
