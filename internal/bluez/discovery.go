package bluez

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// ManagedObjects takes one snapshot of the daemon's entire object graph.
func ManagedObjects(bus Bus) (ObjectMap, error) {
	var objects ObjectMap
	obj := bus.Object(BusName, RootPath)
	if err := obj.Call(getManagedObjectsMethod, 0).Store(&objects); err != nil {
		return nil, wrapOp("GetManagedObjects", err)
	}
	return objects, nil
}

// AdapterInfo is one enumerated adapter. Fields besides Path default to zero
// values when the daemon does not populate the underlying property.
type AdapterInfo struct {
	Path      dbus.ObjectPath `json:"path"`
	ShortName string          `json:"short_name"`
	Address   string          `json:"address"`
	Alias     string          `json:"alias"`
	Powered   bool            `json:"powered"`
}

// ListAdapters enumerates every object carrying the adapter interface,
// ordered by path. Missing per-adapter properties default rather than abort
// the enumeration.
func ListAdapters(bus Bus) ([]AdapterInfo, error) {
	objects, err := ManagedObjects(bus)
	if err != nil {
		return nil, err
	}

	infos := make([]AdapterInfo, 0, 1)
	for path, ifaces := range objects {
		props, ok := ifaces[AdapterInterface]
		if !ok {
			continue
		}
		infos = append(infos, AdapterInfo{
			Path:      path,
			ShortName: ShortName(path),
			Address:   VariantString(props, PropAddress),
			Alias:     VariantString(props, PropAlias),
			Powered:   VariantBool(props, PropPowered),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})

	return infos, nil
}

// SelectAdapter picks an adapter for the given configured name, which may be
// empty, an object path, a short name like "hci1", or a path suffix. The
// resolution order is exact path, exact short name, then path suffix. With
// no match the first enumerated adapter is used and a warning is logged.
// A lone adapter is selected outright; zero adapters is ErrNoAdapterFound.
func SelectAdapter(bus Bus, configured string, logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	infos, err := ListAdapters(bus)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNoAdapterFound
	}
	if len(infos) == 1 {
		return NewAdapter(bus, infos[0].Path), nil
	}

	if configured != "" {
		for _, info := range infos {
			if string(info.Path) == configured {
				return NewAdapter(bus, info.Path), nil
			}
		}
		for _, info := range infos {
			if info.ShortName == configured {
				return NewAdapter(bus, info.Path), nil
			}
		}
		for _, info := range infos {
			if strings.HasSuffix(string(info.Path), "/"+configured) {
				return NewAdapter(bus, info.Path), nil
			}
		}
		logger.WithFields(logrus.Fields{
			"configured": configured,
			"selected":   infos[0].Path,
		}).Warning("Configured adapter not found, falling back to first adapter")
	}

	return NewAdapter(bus, infos[0].Path), nil
}
