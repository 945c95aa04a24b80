package gatt

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// ReadHook runs when a remote central reads the characteristic. It
// receives the current value and the BlueZ read options and returns the
// value to hand back to the central. The returned value replaces the
// stored one, so a hook can model state that changes on every read.
type ReadHook func(current []byte, options bluez.PropertyMap) ([]byte, error)

// WriteHook runs when a remote central writes the characteristic. It
// receives the incoming value and the BlueZ write options and returns
// the value to commit. Returning an error rejects the write and leaves
// the stored value untouched.
type WriteHook func(value []byte, options bluez.PropertyMap) ([]byte, error)

// Characteristic is a value-bearing GATT attribute exposed to BlueZ as
// an org.bluez.GattCharacteristic1 object. Reads and writes from remote
// centrals are routed through optional hooks before the value commits.
type Characteristic struct {
	uuid  string
	flags []string

	mu        sync.RWMutex
	value     []byte
	notifying bool
	onRead    ReadHook
	onWrite   WriteHook
	bus       bluez.Bus

	path        dbus.ObjectPath
	servicePath dbus.ObjectPath
	descriptors *orderedmap.OrderedMap[string, *Descriptor]
	logger      *logrus.Logger
}

// NewCharacteristic creates a characteristic with the given UUID, flags
// and initial value. The UUID is normalized, the flags must be non-empty
// and every flag must be one BlueZ understands.
func NewCharacteristic(rawUUID string, flags []string, value []byte) (*Characteristic, error) {
	normalized, err := ValidateUUID(rawUUID)
	if err != nil {
		return nil, err
	}
	if len(flags) == 0 {
		return nil, fmt.Errorf("characteristic %s: flags cannot be empty", normalized)
	}
	for _, f := range flags {
		if !KnownFlag(f) {
			return nil, fmt.Errorf("characteristic %s: unknown flag %q", normalized, f)
		}
	}
	return &Characteristic{
		uuid:        normalized,
		flags:       append([]string(nil), flags...),
		value:       append([]byte(nil), value...),
		descriptors: orderedmap.New[string, *Descriptor](),
	}, nil
}

// UUID returns the normalized UUID.
func (c *Characteristic) UUID() string { return c.uuid }

// Flags returns a copy of the characteristic flags.
func (c *Characteristic) Flags() []string { return append([]string(nil), c.flags...) }

// Path returns the object path assigned during the application build.
// It is empty until the characteristic is attached to a built application.
func (c *Characteristic) Path() dbus.ObjectPath { return c.path }

// Value returns a copy of the current value.
func (c *Characteristic) Value() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]byte(nil), c.value...)
}

// Notifying reports whether a remote central has an active notify
// session on this characteristic.
func (c *Characteristic) Notifying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifying
}

// SetReadHook installs the hook invoked on remote reads. A nil hook
// restores plain pass-through reads.
func (c *Characteristic) SetReadHook(h ReadHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRead = h
}

// SetWriteHook installs the hook invoked on remote writes. A nil hook
// restores plain stores.
func (c *Characteristic) SetWriteHook(h WriteHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = h
}

// SetValue replaces the stored value locally. When a central is
// subscribed, the new value is pushed out as a PropertiesChanged signal.
func (c *Characteristic) SetValue(value []byte) {
	c.commit(value)
}

// AddDescriptor attaches a descriptor. Adding a second descriptor with
// the same normalized UUID fails and leaves the characteristic unchanged.
func (c *Characteristic) AddDescriptor(d *Descriptor) error {
	key := ShortUUID(d.uuid)
	if _, exists := c.descriptors.Get(key); exists {
		return &DuplicateKeyError{Kind: KindDescriptor, UUID: d.uuid}
	}
	if c.path != "" {
		d.bind(c.path, c.descriptors.Len())
	}
	c.descriptors.Set(key, d)
	return nil
}

// Descriptors returns the attached descriptors in insertion order.
func (c *Characteristic) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, c.descriptors.Len())
	for pair := c.descriptors.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Descriptor looks up an attached descriptor by UUID in any accepted form.
func (c *Characteristic) Descriptor(rawUUID string) (*Descriptor, bool) {
	return c.descriptors.Get(CanonicalUUID(rawUUID))
}

// HandleRead runs the read path: log the request, invoke the read hook
// with the current value, commit and return whatever the hook produced.
// Without a hook the stored value is returned as is.
func (c *Characteristic) HandleRead(options bluez.PropertyMap) ([]byte, error) {
	c.mu.RLock()
	current := append([]byte(nil), c.value...)
	hook := c.onRead
	c.mu.RUnlock()

	c.log().WithFields(logrus.Fields{
		"uuid":  c.uuid,
		"value": hex.EncodeToString(current),
	}).Debug("Characteristic read request")

	if hook == nil {
		return current, nil
	}
	next, err := hook(current, options)
	if err != nil {
		return nil, fmt.Errorf("read hook for %s: %w", c.uuid, err)
	}
	c.commit(next)
	return append([]byte(nil), next...), nil
}

// HandleWrite runs the write path: log the request, invoke the write
// hook with the incoming value and commit the hook's result. Without a
// hook the incoming value is committed unchanged.
func (c *Characteristic) HandleWrite(value []byte, options bluez.PropertyMap) error {
	c.log().WithFields(logrus.Fields{
		"uuid":  c.uuid,
		"value": hex.EncodeToString(value),
	}).Debug("Characteristic write request")

	c.mu.RLock()
	hook := c.onWrite
	c.mu.RUnlock()

	next := value
	if hook != nil {
		var err error
		next, err = hook(value, options)
		if err != nil {
			return fmt.Errorf("write hook for %s: %w", c.uuid, err)
		}
	}
	c.commit(next)
	return nil
}

// ReadValue serves org.bluez.GattCharacteristic1.ReadValue.
func (c *Characteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	value, err := c.HandleRead(options)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return value, nil
}

// WriteValue serves org.bluez.GattCharacteristic1.WriteValue.
func (c *Characteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	if err := c.HandleWrite(value, options); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// StartNotify serves org.bluez.GattCharacteristic1.StartNotify.
func (c *Characteristic) StartNotify() *dbus.Error {
	c.mu.Lock()
	c.notifying = true
	c.mu.Unlock()
	c.log().WithField("uuid", c.uuid).Debug("Notify session started")
	return nil
}

// StopNotify serves org.bluez.GattCharacteristic1.StopNotify.
func (c *Characteristic) StopNotify() *dbus.Error {
	c.mu.Lock()
	c.notifying = false
	c.mu.Unlock()
	c.log().WithField("uuid", c.uuid).Debug("Notify session stopped")
	return nil
}

// commit stores the value and, when a notify session is active and the
// characteristic is exported, emits a PropertiesChanged signal so
// subscribed centrals see the update.
func (c *Characteristic) commit(next []byte) {
	stored := append([]byte(nil), next...)

	c.mu.Lock()
	c.value = stored
	notifying := c.notifying
	bus := c.bus
	c.mu.Unlock()

	if !notifying || bus == nil {
		return
	}
	err := bus.Emit(c.path, bluez.PropertiesChangedSignal,
		bluez.CharacteristicInterface,
		map[string]dbus.Variant{bluez.PropValue: dbus.MakeVariant(stored)},
		[]string{},
	)
	if err != nil {
		c.log().WithError(err).WithField("uuid", c.uuid).Warning("Failed to emit value notification")
	}
}

// bind assigns the object path below the owning service, propagates
// paths to descriptors and adopts the application logger.
func (c *Characteristic) bind(servicePath dbus.ObjectPath, index int, logger *logrus.Logger) {
	c.servicePath = servicePath
	c.path = dbus.ObjectPath(fmt.Sprintf("%s/char%04d", servicePath, index))
	c.logger = logger
	i := 0
	for pair := c.descriptors.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.bind(c.path, i)
		i++
	}
}

// attachBus hands the characteristic its export connection so value
// commits can emit notifications. A nil bus detaches it.
func (c *Characteristic) attachBus(bus bluez.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// properties returns the GattCharacteristic1 property dictionary in the
// shape BlueZ expects from GetManagedObjects. The Descriptors entry is
// present only when descriptors exist.
func (c *Characteristic) properties() bluez.PropertyMap {
	props := bluez.PropertyMap{
		bluez.PropUUID:    dbus.MakeVariant(c.uuid),
		bluez.PropService: dbus.MakeVariant(c.servicePath),
		bluez.PropValue:   dbus.MakeVariant(c.Value()),
		bluez.PropFlags:   dbus.MakeVariant(c.Flags()),
	}
	if c.descriptors.Len() > 0 {
		paths := make([]dbus.ObjectPath, 0, c.descriptors.Len())
		for pair := c.descriptors.Oldest(); pair != nil; pair = pair.Next() {
			paths = append(paths, pair.Value.path)
		}
		props[bluez.PropDescriptors] = dbus.MakeVariant(paths)
	}
	return props
}

func (c *Characteristic) log() *logrus.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logrus.StandardLogger()
}
