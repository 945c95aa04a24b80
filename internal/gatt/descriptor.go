package gatt

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// UserDescriptionUUID is the Characteristic User Description descriptor
// (0x2901), used to publish a human-readable label for a characteristic.
const UserDescriptionUUID = "2901"

// Descriptor holds a static value attached to a characteristic, exposed
// to BlueZ as an org.bluez.GattDescriptor1 object.
type Descriptor struct {
	uuid  string
	flags []string

	mu    sync.RWMutex
	value []byte

	path     dbus.ObjectPath
	charPath dbus.ObjectPath
}

// NewDescriptor creates a descriptor with the given UUID, initial value
// and flags. The UUID is normalized and the flags must not be empty.
func NewDescriptor(rawUUID string, value []byte, flags []string) (*Descriptor, error) {
	normalized, err := ValidateUUID(rawUUID)
	if err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return nil, fmt.Errorf("descriptor %s: flags cannot be empty", normalized)
	}
	return &Descriptor{
		uuid:  normalized,
		flags: append([]string(nil), flags...),
		value: append([]byte(nil), value...),
	}, nil
}

// UUID returns the normalized UUID.
func (d *Descriptor) UUID() string { return d.uuid }

// Flags returns a copy of the descriptor flags.
func (d *Descriptor) Flags() []string { return append([]string(nil), d.flags...) }

// Path returns the object path assigned during the application build.
// It is empty until the descriptor is attached to a built application.
func (d *Descriptor) Path() dbus.ObjectPath { return d.path }

// Value returns a copy of the current value.
func (d *Descriptor) Value() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.value...)
}

// SetValue replaces the stored value.
func (d *Descriptor) SetValue(value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = append([]byte(nil), value...)
}

// ReadValue serves org.bluez.GattDescriptor1.ReadValue.
func (d *Descriptor) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	return d.Value(), nil
}

// WriteValue serves org.bluez.GattDescriptor1.WriteValue.
func (d *Descriptor) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	d.SetValue(value)
	return nil
}

// bind assigns the object path below the owning characteristic.
func (d *Descriptor) bind(charPath dbus.ObjectPath, index int) {
	d.charPath = charPath
	d.path = dbus.ObjectPath(fmt.Sprintf("%s/desc%04d", charPath, index))
}

// properties returns the GattDescriptor1 property dictionary in the
// shape BlueZ expects from GetManagedObjects.
func (d *Descriptor) properties() bluez.PropertyMap {
	return bluez.PropertyMap{
		bluez.PropUUID:           dbus.MakeVariant(d.uuid),
		bluez.PropCharacteristic: dbus.MakeVariant(d.charPath),
		bluez.PropValue:          dbus.MakeVariant(d.Value()),
		bluez.PropFlags:          dbus.MakeVariant(d.Flags()),
	}
}
