package gatt

import "fmt"

// DuplicateKeyError is returned when a service, characteristic or
// descriptor is added under a UUID already present in its parent.
// UUIDs are compared in normalized form, so "180F" collides with "180f".
type DuplicateKeyError struct {
	Kind string
	UUID string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s with UUID %q already exists", e.Kind, e.UUID)
}

// Is matches another DuplicateKeyError with the same kind. A target with
// an empty UUID matches any UUID of that kind.
func (e *DuplicateKeyError) Is(target error) bool {
	t, ok := target.(*DuplicateKeyError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.UUID == "" || e.UUID == t.UUID)
}

// Entity kinds used in DuplicateKeyError.
const (
	KindService        = "service"
	KindCharacteristic = "characteristic"
	KindDescriptor     = "descriptor"
)
