package govmetrics

import "fmt"

// InvalidEventError reports an event the aggregator cannot consume,
// such as an override that has not reached a terminal status.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid governance event: %s", e.Reason)
}
