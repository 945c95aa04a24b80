// Package bluez wraps the BlueZ daemon's D-Bus surface: name and interface
// constants, a narrow bus abstraction, typed adapter proxies, and helpers for
// decoding the property dictionaries BlueZ publishes.
package bluez

import "github.com/godbus/dbus/v5"

// Well-known bus names and object paths.
const (
	BusName  = "org.bluez"
	RootPath = dbus.ObjectPath("/")
)

// BlueZ interfaces.
const (
	AdapterInterface            = "org.bluez.Adapter1"
	DeviceInterface             = "org.bluez.Device1"
	ServiceInterface            = "org.bluez.GattService1"
	CharacteristicInterface     = "org.bluez.GattCharacteristic1"
	DescriptorInterface         = "org.bluez.GattDescriptor1"
	GattManagerInterface        = "org.bluez.GattManager1"
	AdvertisingManagerInterface = "org.bluez.LEAdvertisingManager1"
	AdvertisementInterface      = "org.bluez.LEAdvertisement1"
)

// Generic D-Bus interfaces.
const (
	ObjectManagerInterface  = "org.freedesktop.DBus.ObjectManager"
	PropertiesInterface     = "org.freedesktop.DBus.Properties"
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"
)

// Signal members.
const (
	InterfacesAddedMember   = "InterfacesAdded"
	InterfacesRemovedMember = "InterfacesRemoved"
	PropertiesChangedMember = "PropertiesChanged"

	InterfacesAddedSignal   = ObjectManagerInterface + "." + InterfacesAddedMember
	InterfacesRemovedSignal = ObjectManagerInterface + "." + InterfacesRemovedMember
	PropertiesChangedSignal = PropertiesInterface + "." + PropertiesChangedMember
)

// Method names used through BusObject.Call.
const (
	getManagedObjectsMethod       = ObjectManagerInterface + ".GetManagedObjects"
	startDiscoveryMethod          = AdapterInterface + ".StartDiscovery"
	stopDiscoveryMethod           = AdapterInterface + ".StopDiscovery"
	setDiscoveryFilterMethod      = AdapterInterface + ".SetDiscoveryFilter"
	removeDeviceMethod            = AdapterInterface + ".RemoveDevice"
	registerApplicationMethod     = GattManagerInterface + ".RegisterApplication"
	unregisterApplicationMethod   = GattManagerInterface + ".UnregisterApplication"
	registerAdvertisementMethod   = AdvertisingManagerInterface + ".RegisterAdvertisement"
	unregisterAdvertisementMethod = AdvertisingManagerInterface + ".UnregisterAdvertisement"
	deviceConnectMethod           = DeviceInterface + ".Connect"
	deviceDisconnectMethod        = DeviceInterface + ".Disconnect"
	characteristicReadMethod      = CharacteristicInterface + ".ReadValue"
)

// Property names shared by Adapter1 and Device1 dictionaries.
const (
	PropAddress          = "Address"
	PropAlias            = "Alias"
	PropName             = "Name"
	PropPowered          = "Powered"
	PropDiscoverable     = "Discoverable"
	PropDiscovering      = "Discovering"
	PropUUIDs            = "UUIDs"
	PropConnected        = "Connected"
	PropPaired           = "Paired"
	PropTrusted          = "Trusted"
	PropServicesResolved = "ServicesResolved"
	PropRSSI             = "RSSI"
	PropManufacturerData = "ManufacturerData"
	PropServiceData      = "ServiceData"
	PropUUID             = "UUID"
	PropPrimary          = "Primary"
	PropFlags            = "Flags"
	PropValue            = "Value"
	PropNotifying        = "Notifying"
	PropService          = "Service"
	PropCharacteristic   = "Characteristic"
	PropCharacteristics  = "Characteristics"
	PropDescriptors      = "Descriptors"
)

// InterfacesAddedMatch returns match options for the bus-wide object-added
// signal emitted by the daemon's object manager.
func InterfacesAddedMatch() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(BusName),
		dbus.WithMatchInterface(ObjectManagerInterface),
		dbus.WithMatchMember(InterfacesAddedMember),
	}
}

// PropertiesChangedMatch returns match options for property-change signals
// emitted by one object path.
func PropertiesChangedMatch(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(BusName),
		dbus.WithMatchInterface(PropertiesInterface),
		dbus.WithMatchMember(PropertiesChangedMember),
		dbus.WithMatchObjectPath(path),
	}
}
