package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// Service groups characteristics under one GATT service, exposed to
// BlueZ as an org.bluez.GattService1 object.
type Service struct {
	uuid    string
	primary bool

	path            dbus.ObjectPath
	characteristics *orderedmap.OrderedMap[string, *Characteristic]
	logger          *logrus.Logger
}

// NewService creates a service with the given UUID. Primary services are
// advertised as top-level entry points; secondary services are only
// reachable through includes.
func NewService(rawUUID string, primary bool) (*Service, error) {
	normalized, err := ValidateUUID(rawUUID)
	if err != nil {
		return nil, err
	}
	return &Service{
		uuid:            normalized,
		primary:         primary,
		characteristics: orderedmap.New[string, *Characteristic](),
	}, nil
}

// UUID returns the normalized UUID.
func (s *Service) UUID() string { return s.uuid }

// Primary reports whether this is a primary service.
func (s *Service) Primary() bool { return s.primary }

// Path returns the object path assigned during the application build.
// It is empty until the service is attached to a built application.
func (s *Service) Path() dbus.ObjectPath { return s.path }

// AddCharacteristic attaches a characteristic. Adding a second
// characteristic with the same normalized UUID fails and leaves the
// service unchanged.
func (s *Service) AddCharacteristic(c *Characteristic) error {
	key := ShortUUID(c.uuid)
	if _, exists := s.characteristics.Get(key); exists {
		return &DuplicateKeyError{Kind: KindCharacteristic, UUID: c.uuid}
	}
	if s.path != "" {
		c.bind(s.path, s.characteristics.Len(), s.logger)
	}
	s.characteristics.Set(key, c)
	return nil
}

// Characteristics returns the attached characteristics in insertion order.
func (s *Service) Characteristics() []*Characteristic {
	out := make([]*Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Characteristic looks up an attached characteristic by UUID in any
// accepted form.
func (s *Service) Characteristic(rawUUID string) (*Characteristic, bool) {
	return s.characteristics.Get(CanonicalUUID(rawUUID))
}

// bind assigns the object path below the application root and propagates
// paths and the logger down the characteristic tree.
func (s *Service) bind(appPath dbus.ObjectPath, index int, logger *logrus.Logger) {
	s.path = dbus.ObjectPath(fmt.Sprintf("%s/service%04d", appPath, index))
	s.logger = logger
	i := 0
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.bind(s.path, i, logger)
		i++
	}
}

// properties returns the GattService1 property dictionary in the shape
// BlueZ expects from GetManagedObjects.
func (s *Service) properties() bluez.PropertyMap {
	paths := make([]dbus.ObjectPath, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		paths = append(paths, pair.Value.path)
	}
	return bluez.PropertyMap{
		bluez.PropUUID:            dbus.MakeVariant(s.uuid),
		bluez.PropPrimary:         dbus.MakeVariant(s.primary),
		bluez.PropCharacteristics: dbus.MakeVariant(paths),
	}
}
