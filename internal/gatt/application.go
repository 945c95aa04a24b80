// Package gatt models a GATT application as a tree of services,
// characteristics and descriptors, assigns deterministic object paths,
// and exports the tree on D-Bus in the shape BlueZ's GattManager1
// expects. Remote reads and writes dispatch through per-characteristic
// hooks so simulated devices can compute values on demand.
package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// Application is the root of a GATT object tree. Services hang off the
// application path as service0000, service0001 and so on, with
// characteristics and descriptors numbered the same way below them, in
// insertion order. The tree is what RegisterApplication hands to BlueZ.
type Application struct {
	path     dbus.ObjectPath
	services *orderedmap.OrderedMap[string, *Service]
	logger   *logrus.Logger

	exported []exportEntry
}

// NewApplication creates an empty application rooted at the given
// object path. The logger may be nil.
func NewApplication(path string, logger *logrus.Logger) (*Application, error) {
	root := dbus.ObjectPath(path)
	if !root.IsValid() {
		return nil, fmt.Errorf("invalid application path: %q", path)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Application{
		path:     root,
		services: orderedmap.New[string, *Service](),
		logger:   logger,
	}, nil
}

// Path returns the application root path.
func (a *Application) Path() dbus.ObjectPath { return a.path }

// AddService attaches a service and assigns object paths to it and its
// subtree. Adding a second service with the same normalized UUID fails
// and leaves the application unchanged.
func (a *Application) AddService(s *Service) error {
	key := ShortUUID(s.uuid)
	if _, exists := a.services.Get(key); exists {
		return &DuplicateKeyError{Kind: KindService, UUID: s.uuid}
	}
	s.bind(a.path, a.services.Len(), a.logger)
	a.services.Set(key, s)
	return nil
}

// Services returns the attached services in insertion order.
func (a *Application) Services() []*Service {
	out := make([]*Service, 0, a.services.Len())
	for pair := a.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Service looks up an attached service by UUID in any accepted form.
func (a *Application) Service(rawUUID string) (*Service, bool) {
	return a.services.Get(CanonicalUUID(rawUUID))
}

// FindCharacteristic searches all services for a characteristic with
// the given UUID and returns the first match in tree order.
func (a *Application) FindCharacteristic(rawUUID string) (*Characteristic, bool) {
	key := CanonicalUUID(rawUUID)
	for pair := a.services.Oldest(); pair != nil; pair = pair.Next() {
		if c, ok := pair.Value.characteristics.Get(key); ok {
			return c, true
		}
	}
	return nil, false
}

// ServiceUUIDs returns the UUIDs of all services in insertion order,
// ready for use in an advertisement.
func (a *Application) ServiceUUIDs() []string {
	out := make([]string, 0, a.services.Len())
	for pair := a.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// GetManagedObjects returns the flattened object tree exactly as BlueZ
// consumes it during RegisterApplication: every service, characteristic
// and descriptor keyed by object path, each carrying its single GATT
// interface with the full property dictionary. The application root
// itself exposes no GATT interface and is not listed.
func (a *Application) GetManagedObjects() bluez.ObjectMap {
	objects := make(bluez.ObjectMap)
	for pair := a.services.Oldest(); pair != nil; pair = pair.Next() {
		svc := pair.Value
		objects[svc.path] = map[string]map[string]dbus.Variant{
			bluez.ServiceInterface: svc.properties(),
		}
		for cp := svc.characteristics.Oldest(); cp != nil; cp = cp.Next() {
			char := cp.Value
			objects[char.path] = map[string]map[string]dbus.Variant{
				bluez.CharacteristicInterface: char.properties(),
			}
			for dp := char.descriptors.Oldest(); dp != nil; dp = dp.Next() {
				desc := dp.Value
				objects[desc.path] = map[string]map[string]dbus.Variant{
					bluez.DescriptorInterface: desc.properties(),
				}
			}
		}
	}
	return objects
}
