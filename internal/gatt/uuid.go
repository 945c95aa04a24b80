package gatt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Bluetooth SIG base UUID tail: short UUIDs expand into
// 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID converts a UUID string to its canonical lowercase form:
// 16-bit ("180f") and 32-bit ("0000180f") shorthands stay short, 128-bit
// UUIDs become dashed lowercase. A 0x prefix is stripped. Returns "" when
// the input is not a UUID in any accepted form.
func NormalizeUUID(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")

	switch {
	case (len(s) == 4 || len(s) == 8) && isHex(s):
		return s
	case len(s) == 32 && isHex(s):
		s = s[:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
		fallthrough
	case len(s) == 36:
		u, err := uuid.Parse(s)
		if err != nil {
			return ""
		}
		return u.String()
	default:
		return ""
	}
}

// ValidateUUID normalizes raw and fails when it is not a well-formed UUID.
func ValidateUUID(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("UUID cannot be empty")
	}
	normalized := NormalizeUUID(raw)
	if normalized == "" {
		return "", fmt.Errorf("invalid UUID format: %q", raw)
	}
	return normalized, nil
}

// ExpandUUID returns the full 128-bit form of a normalized UUID, expanding
// 16-bit and 32-bit shorthands onto the Bluetooth SIG base.
func ExpandUUID(normalized string) string {
	switch len(normalized) {
	case 4:
		return "0000" + normalized + sigBaseSuffix
	case 8:
		return normalized + sigBaseSuffix
	default:
		return normalized
	}
}

// ShortUUID contracts a SIG-base UUID back to its 16-bit shorthand: both
// the 128-bit form and the "0000xxxx" 32-bit shorthand collapse to "xxxx".
// Non-SIG UUIDs are returned unchanged.
func ShortUUID(normalized string) string {
	switch {
	case len(normalized) == 36 &&
		strings.HasPrefix(normalized, "0000") &&
		strings.HasSuffix(normalized, sigBaseSuffix):
		return normalized[4:8]
	case len(normalized) == 8 && strings.HasPrefix(normalized, "0000"):
		return normalized[4:]
	}
	return normalized
}

// CanonicalUUID returns the form UUIDs are compared in: normalized, with
// SIG-base values contracted to their 16-bit shorthand, so "180F", "0x180f",
// "0000180f" and the full base-UUID form all name the same attribute.
// Returns "" for input that is not a UUID.
func CanonicalUUID(raw string) string {
	return ShortUUID(NormalizeUUID(raw))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
