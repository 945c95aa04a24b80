package bluez

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Device is a typed façade over one org.bluez.Device1 object, used by the
// central role to drive connections during GATT resolution.
type Device struct {
	bus  Bus
	path dbus.ObjectPath
	obj  dbus.BusObject
}

// NewDevice returns a proxy for the device object at path.
func NewDevice(bus Bus, path dbus.ObjectPath) *Device {
	return &Device{
		bus:  bus,
		path: path,
		obj:  bus.Object(BusName, path),
	}
}

// Path returns the device's object path.
func (d *Device) Path() dbus.ObjectPath {
	return d.path
}

func (d *Device) getProperty(name string, out interface{}) error {
	v, err := d.obj.GetProperty(DeviceInterface + "." + name)
	if err != nil {
		return wrapOp("GetProperty("+name+")", err)
	}
	if err := v.Store(out); err != nil {
		return wrapOp("GetProperty("+name+")", err)
	}
	return nil
}

// Connect initiates a connection to the device.
func (d *Device) Connect() error {
	return wrapOp("Connect", d.obj.Call(deviceConnectMethod, 0).Err)
}

// Disconnect drops the connection to the device.
func (d *Device) Disconnect() error {
	return wrapOp("Disconnect", d.obj.Call(deviceDisconnectMethod, 0).Err)
}

// Connected reports whether the daemon considers the device connected.
func (d *Device) Connected() (bool, error) {
	var b bool
	err := d.getProperty(PropConnected, &b)
	return b, err
}

// ServicesResolved reports whether the daemon has finished discovering the
// device's GATT database.
func (d *Device) ServicesResolved() (bool, error) {
	var b bool
	err := d.getProperty(PropServicesResolved, &b)
	return b, err
}

// Address returns the device's MAC address.
func (d *Device) Address() (string, error) {
	var s string
	err := d.getProperty(PropAddress, &s)
	return s, err
}

// ReadCharacteristicValue reads the remote characteristic at path via
// GattCharacteristic1.ReadValue with an empty option dictionary.
func ReadCharacteristicValue(bus Bus, path dbus.ObjectPath) ([]byte, error) {
	var value []byte
	call := bus.Object(BusName, path).Call(characteristicReadMethod, 0, map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, wrapOp("ReadValue", call.Err)
	}
	if err := call.Store(&value); err != nil {
		return nil, wrapOp("ReadValue", err)
	}
	return value, nil
}

// IsNotConnectedError recognizes the daemon's reply to a disconnect of a
// device that is not connected, which callers treat as success.
func IsNotConnectedError(err error) bool {
	if err == nil {
		return false
	}
	var derr dbus.Error
	if errors.As(err, &derr) && derr.Name == "org.bluez.Error.NotConnected" {
		return true
	}
	return strings.Contains(err.Error(), "Not Connected") ||
		strings.Contains(err.Error(), "NotConnected")
}
