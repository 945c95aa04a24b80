// Package peripheral drives the peripheral role: it builds a GATT
// application from a validated device configuration, registers it with
// BlueZ's GATT manager, and announces it through an LE advertisement.
package peripheral

import (
	"fmt"
	"path"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/gatt"
	"github.com/mmackelprang/BTSimulator/pkg/config"
)

// Manager owns at most one registered GATT application on one adapter
// and the advertisement announcing it. Registration and teardown are
// serialized; the lifecycle is Unregistered, Registering, Registered,
// Unregistering and back.
type Manager struct {
	adapter *bluez.Adapter
	logger  *logrus.Logger

	mu    sync.Mutex
	state State
	cfg   *config.DeviceConfig
	app   *gatt.Application
	adv   *Advertisement
	chars map[string]*gatt.Characteristic
}

// NewManager creates a manager bound to one adapter. The logger may be
// nil.
func NewManager(adapter *bluez.Adapter, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		adapter: adapter,
		logger:  logger,
		state:   StateUnregistered,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Application returns the registered application tree, or nil when
// nothing is registered.
func (m *Manager) Application() *gatt.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.app
}

// Advertising reports whether the advertisement is currently registered.
func (m *Manager) Advertising() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adv != nil
}

// Characteristic looks up a registered characteristic by UUID in any
// accepted form. The registry is rebuilt on every registration, so
// handles from a previous registration are never returned.
func (m *Manager) Characteristic(rawUUID string) (*gatt.Characteristic, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chars[gatt.CanonicalUUID(rawUUID)]
	return c, ok
}

// RegisterApplication validates the configuration, builds the GATT tree,
// exports it and registers it with the daemon. On any failure the
// partially built state is discarded and the manager stays unregistered.
func (m *Manager) RegisterApplication(cfg *config.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUnregistered {
		return &StateError{Op: "register application", State: m.state}
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return &InvalidConfigError{Errors: errs}
	}
	m.state = StateRegistering

	app, chars, err := buildApplication(cfg, m.logger)
	if err != nil {
		m.state = StateUnregistered
		return err
	}

	bus := m.adapter.Bus()
	if err := app.ExportTo(bus); err != nil {
		m.state = StateUnregistered
		return err
	}
	if err := m.adapter.GattManager().RegisterApplication(app.Path(), nil); err != nil {
		app.UnexportFrom(bus)
		m.state = StateUnregistered
		return err
	}

	m.cfg = cfg
	m.app = app
	m.chars = chars
	m.state = StateRegistered
	m.logger.WithFields(logrus.Fields{
		"name":     cfg.Name,
		"path":     string(app.Path()),
		"services": len(cfg.Services),
	}).Info("GATT application registered")
	return nil
}

// RegisterAdvertisement announces the registered application: type
// peripheral, the device's local name, one service UUID per configured
// service, manufacturer data and the TX-power flag from the config.
func (m *Manager) RegisterAdvertisement() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRegistered {
		return &StateError{Op: "register advertisement", State: m.state}
	}
	if m.adv != nil {
		return ErrAlreadyAdvertising
	}

	manufacturerData, err := m.cfg.Advertising.DecodeManufacturerData()
	if err != nil {
		return err
	}
	opts := DefaultAdvertisementOptions()
	opts.LocalName = m.cfg.Advertising.LocalNameOr(m.cfg.Name)
	opts.ServiceUUIDs = m.app.ServiceUUIDs()
	opts.ManufacturerData = manufacturerData
	opts.IncludeTxPower = m.cfg.Advertising.IncludeTxPower

	adv := NewAdvertisement(advertisementPath(m.app.Path()), opts, m.logger)
	bus := m.adapter.Bus()
	if err := adv.ExportTo(bus); err != nil {
		return err
	}
	if err := m.adapter.AdvertisingManager().RegisterAdvertisement(adv.Path(), nil); err != nil {
		adv.UnexportFrom(bus)
		return err
	}

	m.adv = adv
	m.logger.WithFields(logrus.Fields{
		"path":       string(adv.Path()),
		"local_name": opts.LocalName,
	}).Info("Advertisement registered")
	return nil
}

// UnregisterApplication withdraws the advertisement, then the
// application, and disposes the object model. Calling it while nothing
// is registered is a no-op. Teardown always completes locally; the first
// daemon-side failure is returned after the sequence finishes.
func (m *Manager) UnregisterApplication() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unregisterLocked()
}

func (m *Manager) unregisterLocked() error {
	if m.state != StateRegistered {
		return nil
	}
	m.state = StateUnregistering

	bus := m.adapter.Bus()
	var advErr error
	if m.adv != nil {
		// The advertisement references the live application, so it is
		// withdrawn first.
		advErr = m.adapter.AdvertisingManager().UnregisterAdvertisement(m.adv.Path())
		if advErr != nil {
			m.logger.WithError(advErr).Warning("Failed to unregister advertisement")
		}
		m.adv.UnexportFrom(bus)
		m.adv = nil
	}

	appErr := m.adapter.GattManager().UnregisterApplication(m.app.Path())
	if appErr != nil {
		m.logger.WithError(appErr).Warning("Failed to unregister application")
	}
	m.app.UnexportFrom(bus)

	m.app = nil
	m.chars = nil
	m.cfg = nil
	m.state = StateUnregistered
	m.logger.Info("GATT application unregistered")

	if advErr != nil {
		return advErr
	}
	return appErr
}

// Close tears down any live registration. Errors are logged, never
// returned, so teardown on shutdown paths cannot fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unregisterLocked(); err != nil {
		m.logger.WithError(err).Warning("Teardown finished with errors")
	}
	return nil
}

// buildApplication constructs the GATT tree from an already validated
// configuration. Characteristic descriptions become User Description
// descriptors. The returned registry maps canonical characteristic
// UUIDs to their objects.
func buildApplication(cfg *config.DeviceConfig, logger *logrus.Logger) (*gatt.Application, map[string]*gatt.Characteristic, error) {
	appPath := cfg.AppPath
	if appPath == "" {
		appPath = config.DefaultAppPath
	}
	app, err := gatt.NewApplication(appPath, logger)
	if err != nil {
		return nil, nil, err
	}

	chars := map[string]*gatt.Characteristic{}
	for _, sc := range cfg.Services {
		svc, err := gatt.NewService(sc.UUID, sc.IsPrimary())
		if err != nil {
			return nil, nil, fmt.Errorf("building service %s: %w", sc.UUID, err)
		}
		for _, cc := range sc.Characteristics {
			value, err := cc.DecodeValue()
			if err != nil {
				return nil, nil, fmt.Errorf("building characteristic %s: %w", cc.UUID, err)
			}
			char, err := gatt.NewCharacteristic(cc.UUID, cc.Flags, value)
			if err != nil {
				return nil, nil, fmt.Errorf("building characteristic %s: %w", cc.UUID, err)
			}
			if cc.Description != "" {
				desc, err := gatt.NewDescriptor(gatt.UserDescriptionUUID, []byte(cc.Description), []string{gatt.FlagRead})
				if err != nil {
					return nil, nil, fmt.Errorf("building descriptor for %s: %w", cc.UUID, err)
				}
				if err := char.AddDescriptor(desc); err != nil {
					return nil, nil, fmt.Errorf("building descriptor for %s: %w", cc.UUID, err)
				}
			}
			if err := svc.AddCharacteristic(char); err != nil {
				return nil, nil, fmt.Errorf("building service %s: %w", sc.UUID, err)
			}
			// First-wins so lookups agree with tree order when the same
			// characteristic UUID appears under more than one service.
			key := gatt.ShortUUID(char.UUID())
			if _, taken := chars[key]; taken {
				logger.WithField("uuid", char.UUID()).
					Warning("Characteristic UUID appears in multiple services, lookups resolve to the first")
			} else {
				chars[key] = char
			}
		}
		if err := app.AddService(svc); err != nil {
			return nil, nil, err
		}
	}
	return app, chars, nil
}

// advertisementPath places the advertisement next to the application
// root rather than inside the GATT tree.
func advertisementPath(appPath dbus.ObjectPath) dbus.ObjectPath {
	dir := path.Dir(string(appPath))
	if dir == "/" {
		dir = ""
	}
	return dbus.ObjectPath(dir + "/advertisement0")
}
