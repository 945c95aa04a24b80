package sysinfo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmackelprang/BTSimulator/internal/sysinfo"
)

func TestBlueZVersionFromBluetoothctl(t *testing.T) {
	probe := sysinfo.NewProbe(func(name string, args ...string) (string, error) {
		require.Equal(t, "bluetoothctl", name)
		require.Equal(t, []string{"--version"}, args)
		return "bluetoothctl: 5.64\n", nil
	})

	info, err := probe.BlueZVersion()
	require.NoError(t, err)
	assert.Equal(t, 5.64, info.Version)
	assert.Equal(t, "bluetoothctl: 5.64", info.Raw)
	assert.Equal(t, "bluetoothctl", info.Source)
	assert.True(t, info.Supported())
}

func TestBlueZVersionFallsBackToBluetoothd(t *testing.T) {
	var asked []string
	probe := sysinfo.NewProbe(func(name string, args ...string) (string, error) {
		asked = append(asked, name)
		if name == "bluetoothctl" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "5.66\n", nil
	})

	info, err := probe.BlueZVersion()
	require.NoError(t, err)
	assert.Equal(t, []string{"bluetoothctl", "bluetoothd"}, asked)
	assert.Equal(t, 5.66, info.Version)
	assert.Equal(t, "bluetoothd", info.Source)
}

func TestBlueZVersionNothingInstalled(t *testing.T) {
	probe := sysinfo.NewProbe(func(string, ...string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	})

	_, err := probe.BlueZVersion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bluez not installed")
}

func TestBlueZVersionUnparsableOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"words only", "command not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := sysinfo.NewProbe(func(string, ...string) (string, error) {
				return tt.output, nil
			})
			_, err := probe.BlueZVersion()
			assert.Error(t, err)
		})
	}
}

func TestSupportedThreshold(t *testing.T) {
	assert.False(t, sysinfo.BlueZInfo{Version: 5.43}.Supported())
	assert.True(t, sysinfo.BlueZInfo{Version: sysinfo.MinBlueZVersion}.Supported())
	assert.True(t, sysinfo.BlueZInfo{Version: 5.79}.Supported())
}
