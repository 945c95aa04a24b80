package bluez

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// AdapterError wraps a failed bus operation with the operation name, so
// callers never handle the raw transport error type directly.
type AdapterError struct {
	Op  string // e.g. "StartDiscovery", "GetProperty(Address)"
	Err error
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("adapter operation %s failed", e.Op)
	}
	return fmt.Sprintf("adapter operation %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the transport cause to errors.Is/As chains.
func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare AdapterError values by operation name
func (e *AdapterError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AdapterError)
	if !ok {
		return false
	}
	return e.Op == t.Op
}

var (
	// ErrNoAdapterFound indicates the daemon exposes no Bluetooth adapter.
	ErrNoAdapterFound = errors.New("no bluetooth adapter found")
)

// wrapOp normalizes a bus failure into an AdapterError. A nil err passes
// through so call sites can wrap unconditionally.
func wrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Op: op, Err: err}
}

// InvalidArgsError builds the D-Bus reply for a malformed request against
// an exported object.
func InvalidArgsError(format string, args ...interface{}) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs",
		[]interface{}{fmt.Sprintf(format, args...)})
}

// ReadOnlyPropertyError builds the D-Bus reply for a write to a property
// this process never accepts writes for.
func ReadOnlyPropertyError(name string) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly",
		[]interface{}{fmt.Sprintf("property %q is read-only", name)})
}
