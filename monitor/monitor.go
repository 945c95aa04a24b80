// Package monitor watches the bus for device connection transitions: it
// subscribes to the daemon's object-added signal bus-wide, lazily
// subscribes to each discovered device's property changes, and turns
// Connected flips into events on a bounded stream.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/groutine"
)

const signalBuffer = 16

// Options configures monitoring behavior
type Options struct {
	// EventBuffer bounds the event stream; when full, the oldest
	// unconsumed event is dropped.
	EventBuffer int `default:"64"`
}

// DefaultOptions returns default monitoring options
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Monitor tracks which devices are connected. It is the sole writer of
// its connected set; accessors may read concurrently with signal
// handling.
type Monitor struct {
	bus    bluez.Bus
	logger *logrus.Logger
	opts   Options

	mu      sync.Mutex
	state   State
	signals chan *dbus.Signal
	events  *ringChannel[Event]
	done    <-chan struct{}

	// watched indexes the per-device subscriptions this monitor created,
	// keyed by device path. Only the dispatch goroutine writes it;
	// StopMonitoring reads it after joining the dispatcher.
	watched map[dbus.ObjectPath][]dbus.MatchOption

	// connected maps device address to object path.
	connected *hashmap.Map[string, dbus.ObjectPath]
}

// NewMonitor creates a stopped monitor on the given bus connection. Nil
// options or logger select defaults.
func NewMonitor(bus bluez.Bus, opts *Options, logger *logrus.Logger) *Monitor {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		bus:       bus,
		logger:    logger,
		opts:      *opts,
		state:     StateStopped,
		events:    newRingChannel[Event](opts.EventBuffer),
		connected: hashmap.New[string, dbus.ObjectPath](),
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events returns the event stream. A channel obtained before the first
// start carries that session's events too; StopMonitoring closes it, so
// a consumer of a later session must call Events again after restarting.
func (m *Monitor) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.C()
}

// DroppedEvents returns how many events were discarded because no
// consumer kept up with the stream.
func (m *Monitor) DroppedEvents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.Dropped()
}

// IsConnected reports whether the device with the given address is
// currently connected.
func (m *Monitor) IsConnected(address string) bool {
	_, ok := m.connected.Get(strings.ToUpper(address))
	return ok
}

// ConnectedDevices returns the addresses of all currently connected
// devices, sorted.
func (m *Monitor) ConnectedDevices() []string {
	var addrs []string
	m.connected.Range(func(addr string, _ dbus.ObjectPath) bool {
		addrs = append(addrs, addr)
		return true
	})
	sort.Strings(addrs)
	return addrs
}

// StartMonitoring subscribes to the bus-wide object-added signal and
// starts the dispatch goroutine. The monitor transitions to Monitoring
// only once the subscription is live; a subscription failure leaves it
// Stopped.
func (m *Monitor) StartMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStopped {
		return &StateError{Op: "start monitoring", State: m.state}
	}
	m.state = StateStarting

	if err := m.bus.AddMatchSignal(bluez.InterfacesAddedMatch()...); err != nil {
		m.state = StateStopped
		return fmt.Errorf("subscribing to object-added signals: %w", err)
	}

	m.signals = make(chan *dbus.Signal, signalBuffer)
	// A channel handed out by Events before the first start stays live;
	// only a ring drained and closed by a previous session is replaced.
	if m.events.Closed() {
		m.events = newRingChannel[Event](m.opts.EventBuffer)
	}
	m.watched = map[dbus.ObjectPath][]dbus.MatchOption{}
	m.bus.Signal(m.signals)
	m.done = groutine.Go(nil, "connection-monitor", m.dispatch)

	m.state = StateMonitoring
	m.logger.Info("Connection monitoring started")
	return nil
}

// StopMonitoring joins the dispatcher, disposes the object-added
// subscription and every per-device subscription the monitor created,
// clears the connected set and closes the event stream. Calling it while
// already stopped is a no-op.
func (m *Monitor) StopMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateMonitoring {
		return nil
	}

	// After RemoveSignal the connection no longer writes to the channel,
	// so closing it ends the dispatch loop once the backlog drains.
	m.bus.RemoveSignal(m.signals)
	close(m.signals)
	<-m.done

	for path, opts := range m.watched {
		if err := m.bus.RemoveMatchSignal(opts...); err != nil {
			m.logger.WithError(err).WithField("device", string(path)).Warning("Failed to remove device subscription")
		}
	}
	m.watched = nil
	if err := m.bus.RemoveMatchSignal(bluez.InterfacesAddedMatch()...); err != nil {
		m.logger.WithError(err).Warning("Failed to remove object-added subscription")
	}

	m.connected.Range(func(addr string, _ dbus.ObjectPath) bool {
		m.connected.Del(addr)
		return true
	})
	m.events.close()
	m.signals = nil
	m.done = nil

	m.state = StateStopped
	m.logger.Info("Connection monitoring stopped")
	return nil
}

func (m *Monitor) dispatch(ctx context.Context) {
	log := m.logger.WithField("goroutine", groutine.Name(ctx))
	log.Debug("Signal dispatcher running")
	for sig := range m.signals {
		m.handleSignal(sig)
	}
	log.Debug("Signal dispatcher exited")
}

func (m *Monitor) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case bluez.InterfacesAddedSignal:
		m.handleInterfacesAdded(sig)
	case bluez.PropertiesChangedSignal:
		m.handlePropertiesChanged(sig)
	}
}

// handleInterfacesAdded reacts to a new bus object: if it is a device,
// the monitor starts watching its property changes and, when the device
// arrives already connected, records the connection immediately.
func (m *Monitor) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		m.logger.WithField("signal", sig.Name).Warning("Malformed object-added signal")
		return
	}
	path, pathOK := sig.Body[0].(dbus.ObjectPath)
	ifaces, ifacesOK := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !pathOK || !ifacesOK {
		m.logger.WithField("signal", sig.Name).Warning("Malformed object-added signal")
		return
	}
	props, isDevice := ifaces[bluez.DeviceInterface]
	if !isDevice {
		return
	}

	dev := bluez.DecodeDeviceProperties(props)
	m.watchDevice(path)

	if dev.Connected {
		addr := dev.Address
		if addr == "" {
			addr = bluez.AddressFromPath(path)
		}
		if addr == "" {
			m.logger.WithField("device", string(path)).Warning("Connected device has no resolvable address")
			return
		}
		m.markConnected(addr, path)
	}
}

// handlePropertiesChanged reacts to one device's property-change
// notification. At most one net transition is recorded per notification.
func (m *Monitor) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		m.logger.WithField("signal", sig.Name).Warning("Malformed property-change signal")
		return
	}
	iface, ifaceOK := sig.Body[0].(string)
	changed, changedOK := sig.Body[1].(map[string]dbus.Variant)
	if !ifaceOK || !changedOK {
		m.logger.WithField("signal", sig.Name).Warning("Malformed property-change signal")
		return
	}
	if iface != bluez.DeviceInterface {
		return
	}

	v, present := changed[bluez.PropConnected]
	if !present {
		return
	}
	connected, isBool := v.Value().(bool)
	if !isBool {
		m.logger.WithField("device", string(sig.Path)).Warning("Connected property is not a boolean")
		return
	}

	addr := m.deviceAddress(sig.Path)
	if addr == "" {
		m.logger.WithField("device", string(sig.Path)).Warning("Device has no resolvable address")
		return
	}
	if connected {
		m.markConnected(addr, sig.Path)
	} else {
		m.markDisconnected(addr, sig.Path)
	}
}

// watchDevice lazily subscribes to one device's property changes. The
// subscription is indexed by path so StopMonitoring can dispose it.
func (m *Monitor) watchDevice(path dbus.ObjectPath) {
	if _, ok := m.watched[path]; ok {
		return
	}
	opts := bluez.PropertiesChangedMatch(path)
	if err := m.bus.AddMatchSignal(opts...); err != nil {
		m.logger.WithError(err).WithField("device", string(path)).Warning("Failed to subscribe to device properties")
		return
	}
	m.watched[path] = opts
	m.logger.WithField("device", string(path)).Debug("Watching device")
}

// deviceAddress re-reads the device's address, falling back to the
// path encoding when the daemon has already dropped the object.
func (m *Monitor) deviceAddress(path dbus.ObjectPath) string {
	v, err := m.bus.Object(bluez.BusName, path).GetProperty(bluez.DeviceInterface + "." + bluez.PropAddress)
	if err == nil {
		if s, ok := v.Value().(string); ok && s != "" {
			return s
		}
	}
	return bluez.AddressFromPath(path)
}

func (m *Monitor) markConnected(address string, path dbus.ObjectPath) {
	address = strings.ToUpper(address)
	if _, known := m.connected.Get(address); known {
		return
	}
	m.connected.Set(address, path)
	m.logger.WithFields(logrus.Fields{
		"address": address,
		"device":  string(path),
	}).Info("Device connected")
	m.events.send(Event{
		Kind:      EventConnected,
		Address:   address,
		Path:      path,
		Timestamp: time.Now(),
	})
}

func (m *Monitor) markDisconnected(address string, path dbus.ObjectPath) {
	address = strings.ToUpper(address)
	if _, known := m.connected.Get(address); !known {
		return
	}
	m.connected.Del(address)
	m.logger.WithFields(logrus.Fields{
		"address": address,
		"device":  string(path),
	}).Info("Device disconnected")
	m.events.send(Event{
		Kind:      EventDisconnected,
		Address:   address,
		Path:      path,
		Timestamp: time.Now(),
	})
}
