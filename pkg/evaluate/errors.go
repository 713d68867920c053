package evaluate

import "fmt"

// SchemaMismatchError indicates the snapshot's schema version falls
// outside the range the rule set supports. The caller must not guess a
// verdict from partially understood facts.
type SchemaMismatchError struct {
	SnapshotSchema int
	Min            int
	Max            int
}

// Error returns the error message.
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("snapshot schema version %d outside supported range [%d, %d]",
		e.SnapshotSchema, e.Min, e.Max)
}
