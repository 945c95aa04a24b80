// Package sysinfo probes the host Bluetooth stack so the doctor command can
// report whether the environment supports peripheral registration.
package sysinfo

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// MinBlueZVersion is the oldest daemon release whose GATT and advertising
// manager APIs behave the way this program expects.
const MinBlueZVersion = 5.50

// Runner executes one command and returns its stdout. Tests substitute a
// scripted runner; production code uses the default exec-based one.
type Runner func(name string, args ...string) (string, error)

func execRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return string(out), err
}

// BlueZInfo describes the installed daemon.
type BlueZInfo struct {
	Version float64 `json:"version"`
	Raw     string  `json:"raw"`
	Source  string  `json:"source"`
}

// Supported reports whether the daemon is recent enough.
func (i BlueZInfo) Supported() bool {
	return i.Version >= MinBlueZVersion
}

// Probe inspects the host Bluetooth stack.
type Probe struct {
	runner Runner
}

// NewProbe returns a probe using the given runner, or the real command
// runner when nil.
func NewProbe(runner Runner) *Probe {
	if runner == nil {
		runner = execRunner
	}
	return &Probe{runner: runner}
}

// versionCommands are tried in order; bluetoothctl is usually installed for
// users while bluetoothd may need a daemon package path.
var versionCommands = [][]string{
	{"bluetoothctl", "--version"},
	{"bluetoothd", "--version"},
}

// BlueZVersion asks the installed tools for the daemon version, falling
// back through versionCommands until one answers.
func (p *Probe) BlueZVersion() (BlueZInfo, error) {
	var lastErr error
	for _, cmd := range versionCommands {
		out, err := p.runner(cmd[0], cmd[1:]...)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := parseVersionOutput(out)
		if err != nil {
			lastErr = err
			continue
		}
		info.Source = cmd[0]
		return info, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no version command available")
	}
	return BlueZInfo{}, fmt.Errorf("bluez not installed or not accessible: %w", lastErr)
}

// parseVersionOutput extracts the numeric version from output shaped like
// "bluetoothctl: 5.64" or a bare "5.64": the last whitespace field is the
// number.
func parseVersionOutput(output string) (BlueZInfo, error) {
	raw := strings.TrimSpace(output)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return BlueZInfo{}, errors.New("empty version output")
	}
	version, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return BlueZInfo{}, fmt.Errorf("unrecognized version output %q", raw)
	}
	return BlueZInfo{Version: version, Raw: raw}, nil
}
