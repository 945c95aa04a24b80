package bluez

import "github.com/godbus/dbus/v5"

// GattManager drives org.bluez.GattManager1 on one adapter. Obtain it from
// Adapter.GattManager so it shares the adapter's object path.
type GattManager struct {
	obj dbus.BusObject
}

// GattManager returns the GATT-manager capability scoped to this adapter.
func (a *Adapter) GattManager() *GattManager {
	return &GattManager{obj: a.obj}
}

// RegisterApplication announces a GATT application root to the daemon. The
// daemon walks the application's object manager to discover the tree.
func (m *GattManager) RegisterApplication(app dbus.ObjectPath, options map[string]dbus.Variant) error {
	if options == nil {
		options = map[string]dbus.Variant{}
	}
	return wrapOp("RegisterApplication", m.obj.Call(registerApplicationMethod, 0, app, options).Err)
}

// UnregisterApplication withdraws a previously registered application.
func (m *GattManager) UnregisterApplication(app dbus.ObjectPath) error {
	return wrapOp("UnregisterApplication", m.obj.Call(unregisterApplicationMethod, 0, app).Err)
}

// AdvertisingManager drives org.bluez.LEAdvertisingManager1 on one adapter.
type AdvertisingManager struct {
	obj dbus.BusObject
}

// AdvertisingManager returns the advertising capability scoped to this adapter.
func (a *Adapter) AdvertisingManager() *AdvertisingManager {
	return &AdvertisingManager{obj: a.obj}
}

// RegisterAdvertisement activates an exported LEAdvertisement1 object.
func (m *AdvertisingManager) RegisterAdvertisement(adv dbus.ObjectPath, options map[string]dbus.Variant) error {
	if options == nil {
		options = map[string]dbus.Variant{}
	}
	return wrapOp("RegisterAdvertisement", m.obj.Call(registerAdvertisementMethod, 0, adv, options).Err)
}

// UnregisterAdvertisement deactivates a previously registered advertisement.
func (m *AdvertisingManager) UnregisterAdvertisement(adv dbus.ObjectPath) error {
	return wrapOp("UnregisterAdvertisement", m.obj.Call(unregisterAdvertisementMethod, 0, adv).Err)
}
