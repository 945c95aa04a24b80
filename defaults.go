// Package btsimulator embeds the assets the CLI falls back to when the
// user supplies nothing of their own.
package btsimulator

import _ "embed"

// DefaultDeviceConfig is the embedded battery peripheral definition served
// when no config file is given: a single Battery Service whose level starts
// at 100% and drains as it is read.
//
//go:embed examples/battery.json
var DefaultDeviceConfig []byte
