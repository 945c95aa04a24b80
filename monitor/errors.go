package monitor

import "fmt"

// State tracks where a Monitor is in its lifecycle.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateMonitoring State = "monitoring"
)

// StateError reports an operation attempted in a lifecycle state that
// does not allow it.
type StateError struct {
	Op    string
	State State
}

// Error implements the error interface
func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cannot %s: monitor is %s", e.Op, e.State)
}

// Is allows errors.Is to compare StateError values by State
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// ErrAlreadyStarted indicates StartMonitoring was called while the
// monitor is already running.
var ErrAlreadyStarted = &StateError{Op: "start monitoring", State: StateMonitoring}
