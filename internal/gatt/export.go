package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// exportEntry records one (path, interface) pair exported on the bus so
// UnexportFrom can remove exactly what ExportTo installed.
type exportEntry struct {
	path  dbus.ObjectPath
	iface string
}

// objectManager exposes the application tree through
// org.freedesktop.DBus.ObjectManager, which is how BlueZ walks the
// hierarchy during RegisterApplication.
type objectManager struct {
	app *Application
}

func (m *objectManager) GetManagedObjects() (bluez.ObjectMap, *dbus.Error) {
	return m.app.GetManagedObjects(), nil
}

// propertiesHandler serves org.freedesktop.DBus.Properties for a single
// exported GATT object. All properties are read-only over the bus; value
// changes flow through ReadValue and WriteValue instead.
type propertiesHandler struct {
	iface string
	props func() bluez.PropertyMap
}

func (h *propertiesHandler) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != h.iface {
		return nil, bluez.InvalidArgsError("no such interface %q", iface)
	}
	return h.props(), nil
}

func (h *propertiesHandler) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if iface != h.iface {
		return dbus.Variant{}, bluez.InvalidArgsError("no such interface %q", iface)
	}
	v, ok := h.props()[name]
	if !ok {
		return dbus.Variant{}, bluez.InvalidArgsError("no such property %q", name)
	}
	return v, nil
}

func (h *propertiesHandler) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return bluez.ReadOnlyPropertyError(name)
}

// Introspection fragments for the interfaces this package exports.
var (
	objectManagerIntrospectData = introspect.Interface{
		Name: bluez.ObjectManagerInterface,
		Methods: []introspect.Method{{
			Name: "GetManagedObjects",
			Args: []introspect.Arg{
				{Name: "objects", Type: "a{oa{sa{sv}}}", Direction: "out"},
			},
		}},
		Signals: []introspect.Signal{
			{Name: bluez.InterfacesAddedMember, Args: []introspect.Arg{
				{Name: "object", Type: "o"},
				{Name: "interfaces", Type: "a{sa{sv}}"},
			}},
			{Name: bluez.InterfacesRemovedMember, Args: []introspect.Arg{
				{Name: "object", Type: "o"},
				{Name: "interfaces", Type: "as"},
			}},
		},
	}

	serviceIntrospectData = introspect.Interface{
		Name: bluez.ServiceInterface,
		Properties: []introspect.Property{
			{Name: bluez.PropUUID, Type: "s", Access: "read"},
			{Name: bluez.PropPrimary, Type: "b", Access: "read"},
			{Name: bluez.PropCharacteristics, Type: "ao", Access: "read"},
		},
	}

	characteristicIntrospectData = introspect.Interface{
		Name: bluez.CharacteristicInterface,
		Methods: []introspect.Method{
			{Name: "ReadValue", Args: []introspect.Arg{
				{Name: "options", Type: "a{sv}", Direction: "in"},
				{Name: "value", Type: "ay", Direction: "out"},
			}},
			{Name: "WriteValue", Args: []introspect.Arg{
				{Name: "value", Type: "ay", Direction: "in"},
				{Name: "options", Type: "a{sv}", Direction: "in"},
			}},
			{Name: "StartNotify"},
			{Name: "StopNotify"},
		},
		Properties: []introspect.Property{
			{Name: bluez.PropUUID, Type: "s", Access: "read"},
			{Name: bluez.PropService, Type: "o", Access: "read"},
			{Name: bluez.PropValue, Type: "ay", Access: "read"},
			{Name: bluez.PropFlags, Type: "as", Access: "read"},
			{Name: bluez.PropDescriptors, Type: "ao", Access: "read"},
		},
	}

	descriptorIntrospectData = introspect.Interface{
		Name: bluez.DescriptorInterface,
		Methods: []introspect.Method{
			{Name: "ReadValue", Args: []introspect.Arg{
				{Name: "options", Type: "a{sv}", Direction: "in"},
				{Name: "value", Type: "ay", Direction: "out"},
			}},
			{Name: "WriteValue", Args: []introspect.Arg{
				{Name: "value", Type: "ay", Direction: "in"},
				{Name: "options", Type: "a{sv}", Direction: "in"},
			}},
		},
		Properties: []introspect.Property{
			{Name: bluez.PropUUID, Type: "s", Access: "read"},
			{Name: bluez.PropCharacteristic, Type: "o", Access: "read"},
			{Name: bluez.PropValue, Type: "ay", Access: "read"},
			{Name: bluez.PropFlags, Type: "as", Access: "read"},
		},
	}
)

// entityNode builds the introspection tree for one exported object with
// the given GATT interface and child object names.
func entityNode(path dbus.ObjectPath, data introspect.Interface, children []dbus.ObjectPath) *introspect.Node {
	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			data,
		},
	}
	for _, child := range children {
		node.Children = append(node.Children, introspect.Node{Name: bluez.ShortName(child)})
	}
	return node
}

// ExportTo publishes the whole application tree on the bus: the object
// manager at the root, and for every service, characteristic and
// descriptor its GATT interface, a properties handler and introspection
// data. The first failure rolls back everything already exported.
func (a *Application) ExportTo(bus bluez.Bus) error {
	if len(a.exported) > 0 {
		return fmt.Errorf("application %s is already exported", a.path)
	}

	export := func(v interface{}, path dbus.ObjectPath, iface string) error {
		if err := bus.Export(v, path, iface); err != nil {
			return fmt.Errorf("exporting %s at %s: %w", iface, path, err)
		}
		a.exported = append(a.exported, exportEntry{path: path, iface: iface})
		return nil
	}
	fail := func(err error) error {
		a.UnexportFrom(bus)
		return err
	}

	rootNode := &introspect.Node{
		Name:       string(a.path),
		Interfaces: []introspect.Interface{introspect.IntrospectData, objectManagerIntrospectData},
	}
	for _, svc := range a.Services() {
		rootNode.Children = append(rootNode.Children, introspect.Node{Name: bluez.ShortName(svc.path)})
	}
	if err := export(&objectManager{app: a}, a.path, bluez.ObjectManagerInterface); err != nil {
		return fail(err)
	}
	if err := export(introspect.NewIntrospectable(rootNode), a.path, bluez.IntrospectableInterface); err != nil {
		return fail(err)
	}

	for _, svc := range a.Services() {
		chars := svc.Characteristics()
		charPaths := make([]dbus.ObjectPath, len(chars))
		for i, c := range chars {
			charPaths[i] = c.path
		}
		if err := export(&propertiesHandler{iface: bluez.ServiceInterface, props: svc.properties},
			svc.path, bluez.PropertiesInterface); err != nil {
			return fail(err)
		}
		if err := export(introspect.NewIntrospectable(entityNode(svc.path, serviceIntrospectData, charPaths)),
			svc.path, bluez.IntrospectableInterface); err != nil {
			return fail(err)
		}

		for _, char := range chars {
			descs := char.Descriptors()
			descPaths := make([]dbus.ObjectPath, len(descs))
			for i, d := range descs {
				descPaths[i] = d.path
			}
			if err := export(char, char.path, bluez.CharacteristicInterface); err != nil {
				return fail(err)
			}
			if err := export(&propertiesHandler{iface: bluez.CharacteristicInterface, props: char.properties},
				char.path, bluez.PropertiesInterface); err != nil {
				return fail(err)
			}
			if err := export(introspect.NewIntrospectable(entityNode(char.path, characteristicIntrospectData, descPaths)),
				char.path, bluez.IntrospectableInterface); err != nil {
				return fail(err)
			}
			char.attachBus(bus)

			for _, desc := range descs {
				if err := export(desc, desc.path, bluez.DescriptorInterface); err != nil {
					return fail(err)
				}
				if err := export(&propertiesHandler{iface: bluez.DescriptorInterface, props: desc.properties},
					desc.path, bluez.PropertiesInterface); err != nil {
					return fail(err)
				}
				if err := export(introspect.NewIntrospectable(entityNode(desc.path, descriptorIntrospectData, nil)),
					desc.path, bluez.IntrospectableInterface); err != nil {
					return fail(err)
				}
			}
		}
	}

	a.logger.WithFields(logrus.Fields{
		"path":     string(a.path),
		"services": a.services.Len(),
		"objects":  len(a.exported),
	}).Debug("GATT application exported")
	return nil
}

// UnexportFrom removes every export installed by ExportTo and detaches
// characteristics from the bus. Removal failures are logged and skipped
// so teardown always runs to completion.
func (a *Application) UnexportFrom(bus bluez.Bus) {
	for _, svc := range a.Services() {
		for _, char := range svc.Characteristics() {
			char.attachBus(nil)
		}
	}
	for _, e := range a.exported {
		if err := bus.Export(nil, e.path, e.iface); err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"path":      string(e.path),
				"interface": e.iface,
			}).Warning("Failed to remove export")
		}
	}
	a.exported = nil
}
