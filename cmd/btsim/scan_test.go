package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmackelprang/BTSimulator/scanner"
)

func fixtureScanResults() []scanner.ScannedDevice {
	return []scanner.ScannedDevice{
		{
			Path:             "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF",
			Address:          "AA:BB:CC:DD:EE:FF",
			Name:             "SimBattery",
			RSSI:             -42,
			Paired:           true,
			ServicesResolved: true,
			UUIDs:            []string{"0000180f-0000-1000-8000-00805f9b34fb"},
			Services: []scanner.ScannedService{
				{
					Path:    "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0000",
					UUID:    "0000180f-0000-1000-8000-00805f9b34fb",
					Primary: true,
					Characteristics: []scanner.ScannedCharacteristic{
						{
							Path:  "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0000/char0000",
							UUID:  "00002a19-0000-1000-8000-00805f9b34fb",
							Flags: []string{"read", "notify"},
							Value: []byte{0x01, 0x48},
							Descriptors: []scanner.ScannedDescriptor{
								{
									Path:  "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0000/char0000/desc0000",
									UUID:  "00002901-0000-1000-8000-00805f9b34fb",
									Value: []byte("Battery Level"),
								},
							},
						},
					},
				},
			},
		},
		{
			Path:    "/org/bluez/hci0/dev_DE_AD_BE_EF_00_01",
			Address: "DE:AD:BE:EF:00:01",
		},
	}
}

func TestDisplayScanTable(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, displayScanTable(&buf, fixtureScanResults()))
	out := buf.String()

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "ADDRESS")
	assert.Contains(t, out, "SimBattery")
	assert.Contains(t, out, "AA:BB:CC:DD:EE:FF")
	assert.Contains(t, out, "-42 dBm")

	// The nameless device falls back to its address and shows no RSSI.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], "DE:AD:BE:EF:00:01")
	assert.Contains(t, lines[3], "-")
	assert.Contains(t, lines[3], "no")
}

func TestDisplayScanTableTruncatesLongNames(t *testing.T) {
	devices := []scanner.ScannedDevice{
		{Address: "11:22:33:44:55:66", Name: "ExtremelyLongDeviceName99"},
	}
	var buf bytes.Buffer

	require.NoError(t, displayScanTable(&buf, devices))

	assert.Contains(t, buf.String(), "ExtremelyLongDevi...")
	assert.NotContains(t, buf.String(), "ExtremelyLongDeviceName99")
}

func TestDisplayScanTableEmpty(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, displayScanTable(&buf, nil))

	assert.Equal(t, "No devices discovered\n", buf.String())
}

func TestDisplayScanJSONRoundTrips(t *testing.T) {
	devices := fixtureScanResults()
	var buf bytes.Buffer

	require.NoError(t, displayScanJSON(&buf, devices))

	var decoded []scanner.ScannedDevice
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, devices, decoded)
}

func TestDisplayGattTrees(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	var buf bytes.Buffer
	displayGattTrees(&buf, fixtureScanResults())
	out := buf.String()

	assert.Contains(t, out, "AA:BB:CC:DD:EE:FF  SimBattery")
	assert.Contains(t, out, "service 0000180f-0000-1000-8000-00805f9b34fb (primary)")
	assert.Contains(t, out, "char 00002a19-0000-1000-8000-00805f9b34fb [read notify]")
	assert.Contains(t, out, "value: 0x0148")
	assert.Contains(t, out, `desc 00002901-0000-1000-8000-00805f9b34fb  value: "Battery Level"`)

	// Devices without a resolved tree are left out entirely.
	assert.NotContains(t, out, "DE:AD:BE:EF:00:01")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{"empty", nil, "(empty)"},
		{"printable text", []byte("Battery Level"), `"Battery Level"`},
		{"binary", []byte{0x01, 0x02, 0xff}, "0x0102ff"},
		{"single printable byte", []byte{'d'}, `"d"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.value))
		})
	}
}
