package bluez

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// IsChildPath reports whether path sits exactly one level below parent.
func IsChildPath(parent, path dbus.ObjectPath) bool {
	p, c := string(parent), string(path)
	if !strings.HasPrefix(c, p+"/") {
		return false
	}
	return !strings.Contains(c[len(p)+1:], "/")
}

// ShortName returns the last segment of an object path, e.g.
// "/org/bluez/hci0" -> "hci0".
func ShortName(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/")
	if i < 0 {
		return s
	}
	return s[i+1:]
}

// AddressFromPath extracts the MAC from a device path segment
// dev_AA_BB_CC_DD_EE_FF -> AA:BB:CC:DD:EE:FF. Returns "" when the path does
// not name a device object.
func AddressFromPath(path dbus.ObjectPath) string {
	seg := ShortName(path)
	if !strings.HasPrefix(seg, "dev_") {
		return ""
	}
	return strings.ReplaceAll(seg[4:], "_", ":")
}

// PathFromAddress converts a MAC to the device object path below adapterPath,
// e.g. AA:BB:CC:DD:EE:FF -> <adapter>/dev_AA_BB_CC_DD_EE_FF.
func PathFromAddress(adapterPath dbus.ObjectPath, addr string) dbus.ObjectPath {
	seg := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(string(adapterPath) + "/dev_" + seg)
}
