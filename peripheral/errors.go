package peripheral

import (
	"errors"
	"fmt"
	"strings"
)

// State tracks where a Manager is in the registration lifecycle.
type State string

const (
	StateUnregistered  State = "unregistered"
	StateRegistering   State = "registering"
	StateRegistered    State = "registered"
	StateUnregistering State = "unregistering"
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
	return fmt.Sprintf("cannot %s: manager is %s", e.Op, e.State)
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

// Predefined sentinel errors for lifecycle violations
var (
	ErrAlreadyRegistered = &StateError{Op: "register application", State: StateRegistered}
	ErrNotRegistered     = &StateError{Op: "register advertisement", State: StateUnregistered}
)

// ErrAlreadyAdvertising indicates the manager's advertisement is already
// live; unregister the application to rebuild it.
var ErrAlreadyAdvertising = errors.New("advertisement already registered")

// InvalidConfigError carries every validation failure found in a device
// configuration, so the caller can report all of them at once.
type InvalidConfigError struct {
	Errors []error
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "invalid device configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual validation errors to errors.Is/As.
func (e *InvalidConfigError) Unwrap() []error {
	return e.Errors
}
