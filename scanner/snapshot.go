package scanner

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// ScannedDevice is one discovered device together with whatever GATT
// structure the scan resolved. It is a detached snapshot, not a live proxy.
type ScannedDevice struct {
	Path             dbus.ObjectPath   `json:"path"`
	Address          string            `json:"address"`
	Name             string            `json:"name,omitempty"`
	Alias            string            `json:"alias,omitempty"`
	RSSI             int16             `json:"rssi,omitempty"`
	Connected        bool              `json:"connected"`
	Paired           bool              `json:"paired"`
	Trusted          bool              `json:"trusted"`
	ServicesResolved bool              `json:"services_resolved"`
	UUIDs            []string          `json:"uuids,omitempty"`
	ManufacturerData map[uint16][]byte `json:"manufacturer_data,omitempty"`
	Services         []ScannedService  `json:"services,omitempty"`
}

// DisplayName returns the friendliest non-empty identifier for output.
func (d ScannedDevice) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Alias != "":
		return d.Alias
	default:
		return d.Address
	}
}

// ScannedService is one GATT service of a resolved device.
type ScannedService struct {
	Path            dbus.ObjectPath         `json:"path"`
	UUID            string                  `json:"uuid"`
	Primary         bool                    `json:"primary"`
	Characteristics []ScannedCharacteristic `json:"characteristics,omitempty"`
}

// ScannedCharacteristic is one characteristic of a scanned service. Value is
// nil unless the read-skip policy allowed an active read and it succeeded.
type ScannedCharacteristic struct {
	Path        dbus.ObjectPath     `json:"path"`
	UUID        string              `json:"uuid"`
	Flags       []string            `json:"flags"`
	Value       []byte              `json:"value,omitempty"`
	Descriptors []ScannedDescriptor `json:"descriptors,omitempty"`
}

// ScannedDescriptor is one descriptor of a scanned characteristic. Its value
// is taken from the snapshot; descriptors are never actively read.
type ScannedDescriptor struct {
	Path  dbus.ObjectPath `json:"path"`
	UUID  string          `json:"uuid"`
	Value []byte          `json:"value,omitempty"`
}

func newScannedDevice(path dbus.ObjectPath, props bluez.PropertyMap) ScannedDevice {
	dev := bluez.DecodeDeviceProperties(props)
	return ScannedDevice{
		Path:             path,
		Address:          dev.Address,
		Name:             dev.Name,
		Alias:            dev.Alias,
		RSSI:             dev.RSSI,
		Connected:        dev.Connected,
		Paired:           dev.Paired,
		Trusted:          dev.Trusted,
		ServicesResolved: dev.ServicesResolved,
		UUIDs:            dev.UUIDs,
		ManufacturerData: dev.ManufacturerData,
	}
}

// servicesFromSnapshot walks the object graph for the GATT tree below
// devicePath. The daemon exposes services at <device>/serviceNNNN,
// characteristics at <service>/charNNNN and descriptors at <char>/descNNNN,
// so membership is a path-prefix test plus the interface check. Every level
// comes back sorted by path, which the zero-padded indices make equivalent
// to handle order.
func servicesFromSnapshot(objects bluez.ObjectMap, devicePath dbus.ObjectPath) []ScannedService {
	var services []ScannedService
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(devicePath)+"/service") {
			continue
		}
		props, ok := ifaces[bluez.ServiceInterface]
		if !ok {
			continue
		}
		services = append(services, ScannedService{
			Path:            path,
			UUID:            bluez.VariantString(props, bluez.PropUUID),
			Primary:         bluez.VariantBool(props, bluez.PropPrimary),
			Characteristics: characteristicsFromSnapshot(objects, path),
		})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Path < services[j].Path })
	return services
}

func characteristicsFromSnapshot(objects bluez.ObjectMap, servicePath dbus.ObjectPath) []ScannedCharacteristic {
	var chars []ScannedCharacteristic
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(servicePath)+"/char") {
			continue
		}
		props, ok := ifaces[bluez.CharacteristicInterface]
		if !ok {
			continue
		}
		chars = append(chars, ScannedCharacteristic{
			Path:        path,
			UUID:        bluez.VariantString(props, bluez.PropUUID),
			Flags:       bluez.VariantStrings(props, bluez.PropFlags),
			Descriptors: descriptorsFromSnapshot(objects, path),
		})
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i].Path < chars[j].Path })
	return chars
}

func descriptorsFromSnapshot(objects bluez.ObjectMap, charPath dbus.ObjectPath) []ScannedDescriptor {
	var descs []ScannedDescriptor
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(charPath)+"/desc") {
			continue
		}
		props, ok := ifaces[bluez.DescriptorInterface]
		if !ok {
			continue
		}
		descs = append(descs, ScannedDescriptor{
			Path:  path,
			UUID:  bluez.VariantString(props, bluez.PropUUID),
			Value: bluez.VariantBytes(props, bluez.PropValue),
		})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Path < descs[j].Path })
	return descs
}
