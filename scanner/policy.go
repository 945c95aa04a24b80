package scanner

import "github.com/mmackelprang/BTSimulator/internal/gatt"

// ResolvePolicy decides whether the scanner may connect to an unresolved
// device to enumerate its GATT tree.
type ResolvePolicy func(dev ScannedDevice) bool

// DefaultResolvePolicy permits resolution only for devices that are already
// connected, paired, or trusted. Connecting to anything else tends to raise
// an OS pairing prompt that nobody can answer from a headless scan.
func DefaultResolvePolicy(dev ScannedDevice) bool {
	return dev.Connected || dev.Paired || dev.Trusted
}

// ResolveAll connects to every unresolved candidate regardless of pairing
// state. Useful on test rigs where prompts are suppressed.
func ResolveAll(ScannedDevice) bool {
	return true
}

// ResolveNone disables connecting entirely; only devices the daemon has
// already resolved get a GATT tree.
func ResolveNone(ScannedDevice) bool {
	return false
}

// ReadableWithoutAuth reports whether a characteristic's flag set permits a
// plain read: "read" must be present and no secure-read flag may gate it.
func ReadableWithoutAuth(flags []string) bool {
	return gatt.HasFlag(flags, gatt.FlagRead) && !gatt.NeedsSecureRead(flags)
}
