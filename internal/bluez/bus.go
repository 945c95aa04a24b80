package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Bus is the slice of a D-Bus connection this package consumes. *dbus.Conn
// satisfies it; tests substitute a scripted implementation.
type Bus interface {
	// Object returns a proxy handle for the object at path owned by dest.
	Object(dest string, path dbus.ObjectPath) dbus.BusObject

	// Export publishes v's exported methods under path and iface.
	// Exporting nil removes a previous export.
	Export(v interface{}, path dbus.ObjectPath, iface string) error

	// AddMatchSignal asks the bus daemon to route matching signals to this
	// connection; RemoveMatchSignal reverts one prior match.
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error

	// Signal registers a channel receiving all routed signals; RemoveSignal
	// unregisters it. The connection never closes registered channels.
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)

	// Emit broadcasts a signal from path with the given member name and body.
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error

	Close() error
}

// ConnectSystemBus opens a private connection to the system bus, where the
// BlueZ daemon lives. The caller owns the connection and must Close it.
func ConnectSystemBus() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return conn, nil
}

// DaemonPresent asks the bus daemon whether org.bluez currently has an
// owner. It never auto-starts the service.
func DaemonPresent(bus Bus) (bool, error) {
	var owned bool
	obj := bus.Object("org.freedesktop.DBus", dbus.ObjectPath("/org/freedesktop/DBus"))
	if err := obj.Call("org.freedesktop.DBus.NameHasOwner", 0, BusName).Store(&owned); err != nil {
		return false, wrapOp("NameHasOwner", err)
	}
	return owned, nil
}
