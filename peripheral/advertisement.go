package peripheral

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/gatt"
)

// Property names from org.bluez.LEAdvertisement1.
const (
	propType             = "Type"
	propServiceUUIDs     = "ServiceUUIDs"
	propManufacturerData = "ManufacturerData"
	propLocalName        = "LocalName"
	propIncludeTxPower   = "IncludeTxPower"
)

// AdvertisementOptions shapes the broadcast payload announcing the
// peripheral. ManufacturerData maps company identifiers to raw payloads.
type AdvertisementOptions struct {
	Type             string `default:"peripheral"`
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerData map[uint16][]byte
	IncludeTxPower   bool
}

// DefaultAdvertisementOptions returns options for a plain peripheral
// advertisement with no payload.
func DefaultAdvertisementOptions() *AdvertisementOptions {
	opts := &AdvertisementOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// Advertisement is an org.bluez.LEAdvertisement1 object exported for the
// advertising manager to activate. BlueZ reads its properties once at
// registration and calls Release when it lets go of the advertisement.
type Advertisement struct {
	path   dbus.ObjectPath
	opts   AdvertisementOptions
	logger *logrus.Logger

	exportedIfaces []string
}

// NewAdvertisement creates an advertisement at the given object path.
// Nil options mean a default peripheral advertisement; a nil logger is
// replaced with a quiet default.
func NewAdvertisement(path dbus.ObjectPath, opts *AdvertisementOptions, logger *logrus.Logger) *Advertisement {
	if opts == nil {
		opts = DefaultAdvertisementOptions()
	}
	if opts.Type == "" {
		opts.Type = "peripheral"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Advertisement{path: path, opts: *opts, logger: logger}
}

// Path returns the advertisement's object path.
func (a *Advertisement) Path() dbus.ObjectPath { return a.path }

// properties returns the LEAdvertisement1 dictionary BlueZ reads at
// registration. Service UUIDs are expanded to full 128-bit form.
func (a *Advertisement) properties() bluez.PropertyMap {
	props := bluez.PropertyMap{
		propType:           dbus.MakeVariant(a.opts.Type),
		propIncludeTxPower: dbus.MakeVariant(a.opts.IncludeTxPower),
	}
	if len(a.opts.ServiceUUIDs) > 0 {
		uuids := make([]string, len(a.opts.ServiceUUIDs))
		for i, u := range a.opts.ServiceUUIDs {
			uuids[i] = gatt.ExpandUUID(u)
		}
		props[propServiceUUIDs] = dbus.MakeVariant(uuids)
	}
	if len(a.opts.ManufacturerData) > 0 {
		data := make(map[uint16]dbus.Variant, len(a.opts.ManufacturerData))
		for company, payload := range a.opts.ManufacturerData {
			data[company] = dbus.MakeVariant(payload)
		}
		props[propManufacturerData] = dbus.MakeVariant(data)
	}
	if a.opts.LocalName != "" {
		props[propLocalName] = dbus.MakeVariant(a.opts.LocalName)
	}
	return props
}

// Release serves org.bluez.LEAdvertisement1.Release, which the daemon
// calls when it drops the advertisement on its own initiative.
func (a *Advertisement) Release() *dbus.Error {
	a.logger.WithField("path", string(a.path)).Info("Advertisement released by daemon")
	return nil
}

// GetAll serves org.freedesktop.DBus.Properties.GetAll.
func (a *Advertisement) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != bluez.AdvertisementInterface {
		return nil, bluez.InvalidArgsError("no such interface %q", iface)
	}
	return a.properties(), nil
}

// Get serves org.freedesktop.DBus.Properties.Get.
func (a *Advertisement) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != bluez.AdvertisementInterface {
		return dbus.Variant{}, bluez.InvalidArgsError("no such interface %q", iface)
	}
	v, ok := a.properties()[name]
	if !ok {
		return dbus.Variant{}, bluez.InvalidArgsError("no such property %q", name)
	}
	return v, nil
}

// Set serves org.freedesktop.DBus.Properties.Set.
func (a *Advertisement) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return bluez.ReadOnlyPropertyError(name)
}

var advertisementIntrospectData = introspect.Interface{
	Name: bluez.AdvertisementInterface,
	Methods: []introspect.Method{
		{Name: "Release"},
	},
	Properties: []introspect.Property{
		{Name: propType, Type: "s", Access: "read"},
		{Name: propServiceUUIDs, Type: "as", Access: "read"},
		{Name: propManufacturerData, Type: "a{qv}", Access: "read"},
		{Name: propLocalName, Type: "s", Access: "read"},
		{Name: propIncludeTxPower, Type: "b", Access: "read"},
	},
}

// ExportTo publishes the advertisement object on the bus. A partial
// failure removes whatever was already exported.
func (a *Advertisement) ExportTo(bus bluez.Bus) error {
	node := &introspect.Node{
		Name: string(a.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			advertisementIntrospectData,
		},
	}
	exports := []struct {
		v     interface{}
		iface string
	}{
		{a, bluez.AdvertisementInterface},
		{a, bluez.PropertiesInterface},
		{introspect.NewIntrospectable(node), bluez.IntrospectableInterface},
	}
	for _, e := range exports {
		if err := bus.Export(e.v, a.path, e.iface); err != nil {
			a.UnexportFrom(bus)
			return fmt.Errorf("exporting %s at %s: %w", e.iface, a.path, err)
		}
		a.exportedIfaces = append(a.exportedIfaces, e.iface)
	}
	return nil
}

// UnexportFrom removes the advertisement's exports. Failures are logged
// and skipped so teardown runs to completion.
func (a *Advertisement) UnexportFrom(bus bluez.Bus) {
	for _, iface := range a.exportedIfaces {
		if err := bus.Export(nil, a.path, iface); err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"path":      string(a.path),
				"interface": iface,
			}).Warning("Failed to remove export")
		}
	}
	a.exportedIfaces = nil
}
