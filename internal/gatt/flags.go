package gatt

// Characteristic and descriptor flag strings understood by BlueZ.
const (
	FlagBroadcast                 = "broadcast"
	FlagRead                      = "read"
	FlagWriteWithoutResponse      = "write-without-response"
	FlagWrite                     = "write"
	FlagNotify                    = "notify"
	FlagIndicate                  = "indicate"
	FlagAuthenticatedSignedWrites = "authenticated-signed-writes"
	FlagExtendedProperties        = "extended-properties"
	FlagReliableWrite             = "reliable-write"
	FlagWritableAuxiliaries       = "writable-auxiliaries"
	FlagEncryptRead               = "encrypt-read"
	FlagEncryptWrite              = "encrypt-write"
	FlagEncryptAuthenticatedRead  = "encrypt-authenticated-read"
	FlagEncryptAuthenticatedWrite = "encrypt-authenticated-write"
	FlagSecureRead                = "secure-read"
	FlagSecureWrite               = "secure-write"
	FlagAuthorize                 = "authorize"
)

var knownFlags = map[string]struct{}{
	FlagBroadcast:                 {},
	FlagRead:                      {},
	FlagWriteWithoutResponse:      {},
	FlagWrite:                     {},
	FlagNotify:                    {},
	FlagIndicate:                  {},
	FlagAuthenticatedSignedWrites: {},
	FlagExtendedProperties:        {},
	FlagReliableWrite:             {},
	FlagWritableAuxiliaries:       {},
	FlagEncryptRead:               {},
	FlagEncryptWrite:              {},
	FlagEncryptAuthenticatedRead:  {},
	FlagEncryptAuthenticatedWrite: {},
	FlagSecureRead:                {},
	FlagSecureWrite:               {},
	FlagAuthorize:                 {},
}

// Flags that gate reads behind pairing, encryption or an authorization
// prompt. A remote characteristic carrying any of these cannot be read
// over a plain unauthenticated connection.
var secureReadFlags = map[string]struct{}{
	FlagEncryptRead:              {},
	FlagEncryptAuthenticatedRead: {},
	FlagSecureRead:               {},
	FlagAuthorize:                {},
}

// KnownFlag reports whether f is a flag string BlueZ accepts.
func KnownFlag(f string) bool {
	_, ok := knownFlags[f]
	return ok
}

// HasFlag reports whether flags contains f.
func HasFlag(flags []string, f string) bool {
	for _, have := range flags {
		if have == f {
			return true
		}
	}
	return false
}

// NeedsSecureRead reports whether any flag requires an encrypted or
// authorized link before the value can be read.
func NeedsSecureRead(flags []string) bool {
	for _, f := range flags {
		if _, ok := secureReadFlags[f]; ok {
			return true
		}
	}
	return false
}
