// Package config loads and validates simulated-device definitions from
// JSON or YAML files and builds configured logger instances.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"

	"github.com/mmackelprang/BTSimulator/internal/gatt"
)

// DefaultAppPath is the object path a simulated device's GATT tree is
// rooted at when the config does not choose one.
const DefaultAppPath = "/com/btsimulator/app"

// CharacteristicConfig describes one characteristic of a simulated
// device. Value is hex encoded; Description, when set, is published as a
// Characteristic User Description descriptor.
type CharacteristicConfig struct {
	UUID        string   `json:"uuid" yaml:"uuid"`
	Flags       []string `json:"flags" yaml:"flags"`
	Value       string   `json:"value,omitempty" yaml:"value,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// ServiceConfig describes one GATT service. Primary defaults to true
// when omitted.
type ServiceConfig struct {
	UUID            string                 `json:"uuid" yaml:"uuid"`
	Primary         *bool                  `json:"primary,omitempty" yaml:"primary,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics" yaml:"characteristics"`
}

// IsPrimary reports the primary flag, defaulting to true when the config
// leaves it unset.
func (s *ServiceConfig) IsPrimary() bool {
	return s.Primary == nil || *s.Primary
}

// AdvertisingConfig shapes the LE advertisement. ManufacturerData maps
// company identifiers to hex-encoded payloads.
type AdvertisingConfig struct {
	LocalName        string            `json:"local_name,omitempty" yaml:"local_name,omitempty"`
	ManufacturerData map[uint16]string `json:"manufacturer_data,omitempty" yaml:"manufacturer_data,omitempty"`
	IncludeTxPower   bool              `json:"include_tx_power,omitempty" yaml:"include_tx_power,omitempty"`
}

// DeviceConfig is a complete simulated-device definition.
type DeviceConfig struct {
	Name        string            `json:"name" yaml:"name"`
	Address     string            `json:"address,omitempty" yaml:"address,omitempty"`
	Adapter     string            `json:"adapter,omitempty" yaml:"adapter,omitempty"`
	AppPath     string            `json:"app_path,omitempty" yaml:"app_path,omitempty" default:"/com/btsimulator/app"`
	Advertising AdvertisingConfig `json:"advertising,omitempty" yaml:"advertising,omitempty"`
	Logging     LogConfig         `json:"logging,omitempty" yaml:"logging,omitempty"`
	Services    []ServiceConfig   `json:"services" yaml:"services"`
}

// Load reads a device definition from path, choosing the decoder by file
// extension (.json, .yaml, .yml).
func Load(path string) (*DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a device definition and applies defaults. An empty or
// unknown extension tries JSON first, then YAML.
func Parse(data []byte, ext string) (*DeviceConfig, error) {
	cfg := &DeviceConfig{}
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
				return nil, fmt.Errorf("not valid JSON (%v) or YAML (%v)", jsonErr, yamlErr)
			}
		}
	}
	defaults.SetDefaults(cfg)
	return cfg, nil
}

// Validate checks the whole definition and returns every problem found,
// not just the first. A nil result means the config is usable.
func (c *DeviceConfig) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("device name is required"))
	}
	if c.Address != "" {
		if _, err := net.ParseMAC(c.Address); err != nil {
			errs = append(errs, fmt.Errorf("invalid device address %q", c.Address))
		}
	}
	if c.AppPath != "" && !dbus.ObjectPath(c.AppPath).IsValid() {
		errs = append(errs, fmt.Errorf("invalid application path %q", c.AppPath))
	}
	if len(c.Services) == 0 {
		errs = append(errs, errors.New("at least one service is required"))
	}

	seenServices := map[string]struct{}{}
	for i, svc := range c.Services {
		label := fmt.Sprintf("service[%d]", i)

		uuid, err := gatt.ValidateUUID(svc.UUID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		} else {
			key := gatt.ShortUUID(uuid)
			if _, dup := seenServices[key]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate service UUID %q", label, uuid))
			}
			seenServices[key] = struct{}{}
		}

		seenChars := map[string]struct{}{}
		for j, char := range svc.Characteristics {
			clabel := fmt.Sprintf("%s.characteristic[%d]", label, j)

			uuid, err := gatt.ValidateUUID(char.UUID)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", clabel, err))
			} else {
				key := gatt.ShortUUID(uuid)
				if _, dup := seenChars[key]; dup {
					errs = append(errs, fmt.Errorf("%s: duplicate characteristic UUID %q", clabel, uuid))
				}
				seenChars[key] = struct{}{}
			}

			if len(char.Flags) == 0 {
				errs = append(errs, fmt.Errorf("%s: flags cannot be empty", clabel))
			}
			for _, f := range char.Flags {
				if !gatt.KnownFlag(f) {
					errs = append(errs, fmt.Errorf("%s: unknown flag %q", clabel, f))
				}
			}
			if _, err := char.DecodeValue(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", clabel, err))
			}
		}
	}

	if _, err := c.Advertising.DecodeManufacturerData(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// DecodeValue decodes the hex-encoded initial value. An empty string
// decodes to nil.
func (c *CharacteristicConfig) DecodeValue() ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(c.Value), "0x")
	if s == "" {
		return nil, nil
	}
	value, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q", c.Value)
	}
	return value, nil
}

// DecodeManufacturerData decodes the hex payloads keyed by company ID.
func (a *AdvertisingConfig) DecodeManufacturerData() (map[uint16][]byte, error) {
	if len(a.ManufacturerData) == 0 {
		return nil, nil
	}
	out := make(map[uint16][]byte, len(a.ManufacturerData))
	for company, payload := range a.ManufacturerData {
		s := strings.TrimPrefix(strings.TrimSpace(payload), "0x")
		data, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("manufacturer data for company %#04x: invalid hex value %q", company, payload)
		}
		out[company] = data
	}
	return out, nil
}

// LocalNameOr returns the advertising local name, falling back to the
// given device name when unset.
func (a *AdvertisingConfig) LocalNameOr(deviceName string) string {
	if a.LocalName != "" {
		return a.LocalName
	}
	return deviceName
}
