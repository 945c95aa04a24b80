package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownFlag(t *testing.T) {
	assert.True(t, KnownFlag(FlagRead))
	assert.True(t, KnownFlag(FlagWriteWithoutResponse))
	assert.True(t, KnownFlag(FlagEncryptAuthenticatedRead))
	assert.False(t, KnownFlag("readable"))
	assert.False(t, KnownFlag(""))
}

func TestHasFlag(t *testing.T) {
	flags := []string{FlagRead, FlagNotify}
	assert.True(t, HasFlag(flags, FlagRead))
	assert.True(t, HasFlag(flags, FlagNotify))
	assert.False(t, HasFlag(flags, FlagWrite))
	assert.False(t, HasFlag(nil, FlagRead))
}

func TestNeedsSecureRead(t *testing.T) {
	tests := []struct {
		name     string
		flags    []string
		expected bool
	}{
		{"plain read", []string{FlagRead}, false},
		{"read and notify", []string{FlagRead, FlagNotify}, false},
		{"encrypt-read", []string{FlagRead, FlagEncryptRead}, true},
		{"encrypt-authenticated-read", []string{FlagEncryptAuthenticatedRead}, true},
		{"secure-read", []string{FlagRead, FlagSecureRead}, true},
		{"authorize", []string{FlagRead, FlagAuthorize}, true},
		{"secure write only", []string{FlagRead, FlagSecureWrite}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsSecureRead(tt.flags))
		})
	}
}
