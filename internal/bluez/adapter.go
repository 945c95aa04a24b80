package bluez

import (
	"github.com/godbus/dbus/v5"
)

// Adapter is a typed façade over one org.bluez.Adapter1 object. Properties
// are fetched on demand so callers never observe stale cached state. Every
// failure surfaces as an *AdapterError carrying the operation name; the raw
// transport error stays wrapped inside.
type Adapter struct {
	bus  Bus
	path dbus.ObjectPath
	obj  dbus.BusObject
}

// NewAdapter returns a proxy for the adapter object at path. The path is not
// verified here; the first property access will fail if it does not exist.
func NewAdapter(bus Bus, path dbus.ObjectPath) *Adapter {
	return &Adapter{
		bus:  bus,
		path: path,
		obj:  bus.Object(BusName, path),
	}
}

// Path returns the adapter's object path.
func (a *Adapter) Path() dbus.ObjectPath {
	return a.path
}

// ShortName returns the last path segment, e.g. "hci0".
func (a *Adapter) ShortName() string {
	return ShortName(a.path)
}

// Bus exposes the underlying connection for collaborators that share it.
func (a *Adapter) Bus() Bus {
	return a.bus
}

func (a *Adapter) getProperty(name string, out interface{}) error {
	v, err := a.obj.GetProperty(AdapterInterface + "." + name)
	if err != nil {
		return wrapOp("GetProperty("+name+")", err)
	}
	if err := v.Store(out); err != nil {
		return wrapOp("GetProperty("+name+")", err)
	}
	return nil
}

func (a *Adapter) setProperty(name string, value interface{}) error {
	err := a.obj.SetProperty(AdapterInterface+"."+name, dbus.MakeVariant(value))
	return wrapOp("SetProperty("+name+")", err)
}

func (a *Adapter) call(op, method string, args ...interface{}) error {
	return wrapOp(op, a.obj.Call(method, 0, args...).Err)
}

// Address returns the adapter's MAC address.
func (a *Adapter) Address() (string, error) {
	var s string
	err := a.getProperty(PropAddress, &s)
	return s, err
}

// Name returns the adapter's system name.
func (a *Adapter) Name() (string, error) {
	var s string
	err := a.getProperty(PropName, &s)
	return s, err
}

// Alias returns the adapter's friendly name.
func (a *Adapter) Alias() (string, error) {
	var s string
	err := a.getProperty(PropAlias, &s)
	return s, err
}

// SetAlias sets the adapter's friendly name.
func (a *Adapter) SetAlias(alias string) error {
	return a.setProperty(PropAlias, alias)
}

// Powered reports whether the radio is powered on.
func (a *Adapter) Powered() (bool, error) {
	var b bool
	err := a.getProperty(PropPowered, &b)
	return b, err
}

// SetPowered powers the radio on or off.
func (a *Adapter) SetPowered(powered bool) error {
	return a.setProperty(PropPowered, powered)
}

// Discoverable reports whether the adapter answers inquiry scans.
func (a *Adapter) Discoverable() (bool, error) {
	var b bool
	err := a.getProperty(PropDiscoverable, &b)
	return b, err
}

// SetDiscoverable toggles inquiry-scan visibility.
func (a *Adapter) SetDiscoverable(discoverable bool) error {
	return a.setProperty(PropDiscoverable, discoverable)
}

// Discovering reports whether a device discovery session is active.
func (a *Adapter) Discovering() (bool, error) {
	var b bool
	err := a.getProperty(PropDiscovering, &b)
	return b, err
}

// UUIDs returns the service UUIDs the adapter supports.
func (a *Adapter) UUIDs() ([]string, error) {
	var s []string
	err := a.getProperty(PropUUIDs, &s)
	return s, err
}

// StartDiscovery begins a device discovery session.
func (a *Adapter) StartDiscovery() error {
	return a.call("StartDiscovery", startDiscoveryMethod)
}

// StopDiscovery ends the discovery session started by this connection.
func (a *Adapter) StopDiscovery() error {
	return a.call("StopDiscovery", stopDiscoveryMethod)
}

// SetDiscoveryFilter narrows discovery results, e.g. {"Transport": "le"}.
func (a *Adapter) SetDiscoveryFilter(filter map[string]dbus.Variant) error {
	return a.call("SetDiscoveryFilter", setDiscoveryFilterMethod, filter)
}

// RemoveDevice drops the daemon's cached state for one device object.
func (a *Adapter) RemoveDevice(device dbus.ObjectPath) error {
	return a.call("RemoveDevice", removeDeviceMethod, device)
}
