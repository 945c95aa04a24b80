// Package scanner implements the central role: it drives adapter discovery,
// snapshots the daemon's object graph, and resolves the GATT database of the
// devices its policy allows it to connect to.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// ScanOptions configures one scan pass.
type ScanOptions struct {
	// Duration is how long discovery runs before the object graph is
	// snapshotted.
	Duration time.Duration `default:"10s"`

	// ResolveAttempts bounds the ServicesResolved polls per connected
	// device; ResolveInterval is the fixed delay between polls.
	ResolveAttempts int           `default:"10"`
	ResolveInterval time.Duration `default:"500ms"`

	// ReadValues enables active reads of characteristic values where the
	// flag set permits a plain read.
	ReadValues bool `default:"true"`

	// ResolvePolicy gates connecting to unresolved devices. Nil means
	// DefaultResolvePolicy.
	ResolvePolicy ResolvePolicy
}

// DefaultScanOptions returns the standard scan configuration.
func DefaultScanOptions() *ScanOptions {
	opts := &ScanOptions{}
	defaults.SetDefaults(opts)
	opts.ResolvePolicy = DefaultResolvePolicy
	return opts
}

// Scanner discovers nearby devices through one adapter.
type Scanner struct {
	adapter *bluez.Adapter
	logger  *logrus.Logger
}

// NewScanner creates a scanner bound to the given adapter.
func NewScanner(adapter *bluez.Adapter, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{adapter: adapter, logger: logger}
}

// Scan runs one discovery window and returns a snapshot of every device
// under the adapter, with GATT trees for the devices that are resolved or
// could be. Cancelling ctx ends the window early; whatever was collected by
// then is still returned. Per-device resolution failures are logged and
// leave that candidate unresolved rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progress ProgressCallback) ([]ScannedDevice, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = DefaultScanOptions()
	} else if opts.ResolvePolicy == nil {
		copied := *opts
		copied.ResolvePolicy = DefaultResolvePolicy
		opts = &copied
	}
	if progress == nil {
		progress = func(string) {}
	}

	s.logger.WithFields(logrus.Fields{
		"adapter":  s.adapter.ShortName(),
		"duration": opts.Duration,
	}).Info("Starting device scan")

	progress("Scanning")
	if err := s.adapter.StartDiscovery(); err != nil {
		return nil, fmt.Errorf("starting discovery: %w", err)
	}
	s.wait(ctx, opts.Duration)
	if err := s.adapter.StopDiscovery(); err != nil {
		s.logger.WithError(err).Warning("Stopping discovery failed")
	}

	progress("Collecting devices")
	objects, err := bluez.ManagedObjects(s.adapter.Bus())
	if err != nil {
		return nil, fmt.Errorf("reading object snapshot: %w", err)
	}
	devices := s.collectCandidates(objects)

	progress("Resolving services")
	for i := range devices {
		dev := &devices[i]
		if ctx.Err() != nil {
			s.logger.Debug("Scan cancelled before resolving remaining devices")
			break
		}
		if !dev.ServicesResolved {
			if !opts.ResolvePolicy(*dev) {
				s.logger.WithField("device", dev.Address).Debug("Resolution skipped by policy")
				continue
			}
			if err := s.resolveDevice(ctx, dev, opts); err != nil {
				s.logger.WithError(err).WithField("device", dev.Address).Warning("GATT resolution failed")
				continue
			}
			// The freshly resolved tree exists only in a new snapshot.
			refreshed, err := bluez.ManagedObjects(s.adapter.Bus())
			if err != nil {
				s.logger.WithError(err).Warning("Refreshing object snapshot failed")
			} else {
				objects = refreshed
			}
		}
		dev.Services = servicesFromSnapshot(objects, dev.Path)
		if opts.ReadValues {
			s.readValues(dev.Services)
		}
	}

	s.logger.WithField("device_count", len(devices)).Info("Device scan completed")
	return devices, nil
}

// collectCandidates picks the direct children of the adapter that carry the
// device interface, ordered by path.
func (s *Scanner) collectCandidates(objects bluez.ObjectMap) []ScannedDevice {
	var devices []ScannedDevice
	for path, ifaces := range objects {
		if !bluez.IsChildPath(s.adapter.Path(), path) {
			continue
		}
		props, ok := ifaces[bluez.DeviceInterface]
		if !ok {
			continue
		}
		devices = append(devices, newScannedDevice(path, props))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices
}

// resolveDevice connects to one unresolved device and polls until the
// daemon reports its services resolved or the attempts are exhausted. The
// disconnect always runs; a "not connected" reply to it counts as success.
func (s *Scanner) resolveDevice(ctx context.Context, dev *ScannedDevice, opts *ScanOptions) error {
	proxy := bluez.NewDevice(s.adapter.Bus(), dev.Path)

	s.logger.WithField("device", dev.Address).Debug("Connecting for GATT resolution")
	if err := proxy.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	var lastErr error
	resolved := false
	for attempt := 1; attempt <= opts.ResolveAttempts; attempt++ {
		ok, err := proxy.ServicesResolved()
		if err != nil {
			lastErr = err
		} else if ok {
			resolved = true
			break
		}
		if attempt == opts.ResolveAttempts || !s.wait(ctx, opts.ResolveInterval) {
			break
		}
	}

	if err := proxy.Disconnect(); err != nil && !bluez.IsNotConnectedError(err) {
		s.logger.WithError(err).WithField("device", dev.Address).Warning("Disconnect after resolution failed")
	}

	if !resolved {
		if lastErr != nil {
			return fmt.Errorf("polling services: %w", lastErr)
		}
		return fmt.Errorf("services not resolved after %d attempts", opts.ResolveAttempts)
	}
	dev.ServicesResolved = true
	return nil
}

// readValues fills in the values of characteristics whose flag set permits
// a plain read. Failed reads leave the value nil.
func (s *Scanner) readValues(services []ScannedService) {
	for si := range services {
		for ci := range services[si].Characteristics {
			char := &services[si].Characteristics[ci]
			if !ReadableWithoutAuth(char.Flags) {
				continue
			}
			value, err := bluez.ReadCharacteristicValue(s.adapter.Bus(), char.Path)
			if err != nil {
				s.logger.WithError(err).WithField("characteristic", char.UUID).Debug("Characteristic read failed")
				continue
			}
			char.Value = value
		}
	}
}

// wait sleeps for d unless ctx ends first; false reports the early end.
func (s *Scanner) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
