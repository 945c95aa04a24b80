package testutils

import (
	"github.com/godbus/dbus/v5"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// AdapterProps builds an org.bluez.Adapter1 property dictionary.
func AdapterProps(address, alias string, powered bool) bluez.PropertyMap {
	return bluez.PropertyMap{
		bluez.PropAddress: dbus.MakeVariant(address),
		bluez.PropName:    dbus.MakeVariant(alias),
		bluez.PropAlias:   dbus.MakeVariant(alias),
		bluez.PropPowered: dbus.MakeVariant(powered),
	}
}

// DeviceBuilder assembles org.bluez.Device1 property dictionaries for tests.
type DeviceBuilder struct {
	props bluez.PropertyMap
}

// NewDeviceBuilder starts an empty device dictionary.
func NewDeviceBuilder() *DeviceBuilder {
	return &DeviceBuilder{props: bluez.PropertyMap{}}
}

func (b *DeviceBuilder) WithAddress(address string) *DeviceBuilder {
	b.props[bluez.PropAddress] = dbus.MakeVariant(address)
	return b
}

func (b *DeviceBuilder) WithName(name string) *DeviceBuilder {
	b.props[bluez.PropName] = dbus.MakeVariant(name)
	return b
}

func (b *DeviceBuilder) WithAlias(alias string) *DeviceBuilder {
	b.props[bluez.PropAlias] = dbus.MakeVariant(alias)
	return b
}

func (b *DeviceBuilder) WithRSSI(rssi int16) *DeviceBuilder {
	b.props[bluez.PropRSSI] = dbus.MakeVariant(rssi)
	return b
}

func (b *DeviceBuilder) WithConnected(connected bool) *DeviceBuilder {
	b.props[bluez.PropConnected] = dbus.MakeVariant(connected)
	return b
}

func (b *DeviceBuilder) WithPaired(paired bool) *DeviceBuilder {
	b.props[bluez.PropPaired] = dbus.MakeVariant(paired)
	return b
}

func (b *DeviceBuilder) WithTrusted(trusted bool) *DeviceBuilder {
	b.props[bluez.PropTrusted] = dbus.MakeVariant(trusted)
	return b
}

func (b *DeviceBuilder) WithServicesResolved(resolved bool) *DeviceBuilder {
	b.props[bluez.PropServicesResolved] = dbus.MakeVariant(resolved)
	return b
}

func (b *DeviceBuilder) WithUUIDs(uuids ...string) *DeviceBuilder {
	b.props[bluez.PropUUIDs] = dbus.MakeVariant(uuids)
	return b
}

func (b *DeviceBuilder) WithManufacturerData(data map[uint16][]byte) *DeviceBuilder {
	m := make(map[uint16]dbus.Variant, len(data))
	for id, payload := range data {
		m[id] = dbus.MakeVariant(payload)
	}
	b.props[bluez.PropManufacturerData] = dbus.MakeVariant(m)
	return b
}

// Build returns the accumulated dictionary.
func (b *DeviceBuilder) Build() bluez.PropertyMap {
	return b.props
}

// RemoteServiceProps builds a GattService1 dictionary as the daemon exposes
// it for a resolved remote device.
func RemoteServiceProps(uuid string, primary bool, devicePath dbus.ObjectPath) bluez.PropertyMap {
	return bluez.PropertyMap{
		bluez.PropUUID:    dbus.MakeVariant(uuid),
		bluez.PropPrimary: dbus.MakeVariant(primary),
		"Device":          dbus.MakeVariant(devicePath),
	}
}

// RemoteCharacteristicProps builds a GattCharacteristic1 dictionary for a
// resolved remote device.
func RemoteCharacteristicProps(uuid string, servicePath dbus.ObjectPath, flags []string, value []byte) bluez.PropertyMap {
	props := bluez.PropertyMap{
		bluez.PropUUID:  dbus.MakeVariant(uuid),
		"Service":       dbus.MakeVariant(servicePath),
		bluez.PropFlags: dbus.MakeVariant(flags),
	}
	if value != nil {
		props[bluez.PropValue] = dbus.MakeVariant(value)
	}
	return props
}

// RemoteDescriptorProps builds a GattDescriptor1 dictionary for a resolved
// remote device.
func RemoteDescriptorProps(uuid string, charPath dbus.ObjectPath, value []byte) bluez.PropertyMap {
	props := bluez.PropertyMap{
		bluez.PropUUID:   dbus.MakeVariant(uuid),
		"Characteristic": dbus.MakeVariant(charPath),
	}
	if value != nil {
		props[bluez.PropValue] = dbus.MakeVariant(value)
	}
	return props
}

// NewInterfacesAdded builds the signal the object manager emits when an
// object appears on the bus.
func NewInterfacesAdded(objPath dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Sender: bluez.BusName,
		Path:   bluez.RootPath,
		Name:   bluez.InterfacesAddedSignal,
		Body:   []interface{}{objPath, ifaces},
	}
}

// NewDeviceAdded wraps NewInterfacesAdded for a Device1 dictionary.
func NewDeviceAdded(objPath dbus.ObjectPath, props bluez.PropertyMap) *dbus.Signal {
	return NewInterfacesAdded(objPath, map[string]map[string]dbus.Variant{
		bluez.DeviceInterface: props,
	})
}

// NewPropertiesChanged builds a property-change signal for one object.
func NewPropertiesChanged(objPath dbus.ObjectPath, iface string, changed bluez.PropertyMap) *dbus.Signal {
	return &dbus.Signal{
		Sender: bluez.BusName,
		Path:   objPath,
		Name:   bluez.PropertiesChangedSignal,
		Body:   []interface{}{iface, changed, []string{}},
	}
}

// NewConnectedChanged builds a Device1 Connected transition signal.
func NewConnectedChanged(objPath dbus.ObjectPath, connected bool) *dbus.Signal {
	return NewPropertiesChanged(objPath, bluez.DeviceInterface, bluez.PropertyMap{
		bluez.PropConnected: dbus.MakeVariant(connected),
	})
}
