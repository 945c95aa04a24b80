package bluez

import "github.com/godbus/dbus/v5"

// ObjectMap is the shape GetManagedObjects returns: object path ->
// interface name -> property dictionary.
type ObjectMap = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// PropertyMap is one object's properties under a single interface.
type PropertyMap = map[string]dbus.Variant

// The Variant* helpers decode BlueZ property dictionaries defensively:
// a missing or mistyped entry yields the zero value instead of a panic,
// because not every adapter or device populates every property.

// VariantString decodes props[key] as a string, "" when absent or mistyped.
func VariantString(props PropertyMap, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// VariantBool decodes props[key] as a bool, false when absent or mistyped.
func VariantBool(props PropertyMap, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

// VariantInt16 decodes props[key] as an int16 (BlueZ encodes RSSI as 'n').
func VariantInt16(props PropertyMap, key string) int16 {
	if v, ok := props[key]; ok {
		if n, ok := v.Value().(int16); ok {
			return n
		}
	}
	return 0
}

// VariantStrings decodes props[key] as a string slice, nil when absent.
func VariantStrings(props PropertyMap, key string) []string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().([]string); ok {
			return s
		}
	}
	return nil
}

// VariantBytes decodes props[key] as a byte slice, nil when absent.
func VariantBytes(props PropertyMap, key string) []byte {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().([]byte); ok {
			return b
		}
	}
	return nil
}

// DeviceProperties is a decoded snapshot of one org.bluez.Device1 dictionary.
type DeviceProperties struct {
	Address          string
	Name             string
	Alias            string
	RSSI             int16
	Connected        bool
	Paired           bool
	Trusted          bool
	ServicesResolved bool
	UUIDs            []string
	ManufacturerData map[uint16][]byte
	ServiceData      map[string][]byte
}

// DecodeDeviceProperties builds a DeviceProperties record from a raw Device1
// property dictionary. Unknown keys are ignored, missing keys default.
func DecodeDeviceProperties(props PropertyMap) DeviceProperties {
	d := DeviceProperties{
		Address:          VariantString(props, PropAddress),
		Name:             VariantString(props, PropName),
		Alias:            VariantString(props, PropAlias),
		RSSI:             VariantInt16(props, PropRSSI),
		Connected:        VariantBool(props, PropConnected),
		Paired:           VariantBool(props, PropPaired),
		Trusted:          VariantBool(props, PropTrusted),
		ServicesResolved: VariantBool(props, PropServicesResolved),
		UUIDs:            VariantStrings(props, PropUUIDs),
	}

	if v, ok := props[PropManufacturerData]; ok {
		if m, ok := v.Value().(map[uint16]dbus.Variant); ok {
			d.ManufacturerData = make(map[uint16][]byte, len(m))
			for id, raw := range m {
				if b, ok := raw.Value().([]byte); ok {
					d.ManufacturerData[id] = b
				}
			}
		}
	}
	if v, ok := props[PropServiceData]; ok {
		if m, ok := v.Value().(map[string]dbus.Variant); ok {
			d.ServiceData = make(map[string][]byte, len(m))
			for uuid, raw := range m {
				if b, ok := raw.Value().([]byte); ok {
					d.ServiceData[uuid] = b
				}
			}
		}
	}

	return d
}

// DisplayName returns the friendliest non-empty identifier for logging.
func (d DeviceProperties) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Alias != "":
		return d.Alias
	default:
		return d.Address
	}
}
