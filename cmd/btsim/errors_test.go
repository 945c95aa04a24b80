package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "plain error passes through",
			err:  errors.New("starting discovery: boom"),
			want: "starting discovery: boom",
		},
		{
			name: "missing adapter",
			err:  fmt.Errorf("selecting adapter: %w", bluez.ErrNoAdapterFound),
			want: "no Bluetooth adapter found (is the controller attached and not blocked by rfkill?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}

func TestUserMessageDBusHints(t *testing.T) {
	tests := []struct {
		name     string
		errName  string
		wantHint string
	}{
		{"access denied", dbusErrAccessDenied, "run as root"},
		{"service unknown", dbusErrServiceUnknown, "does not appear to be running"},
		{"no owner", dbusErrNoOwner, "does not appear to be running"},
		{"no reply", dbusErrNoReply, "did not answer in time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &bluez.AdapterError{
				Op:  "StartDiscovery",
				Err: dbus.Error{Name: tt.errName, Body: []interface{}{"detail"}},
			}

			msg := userMessage(err)

			assert.Contains(t, msg, err.Error())
			assert.Contains(t, msg, "Hint:")
			assert.Contains(t, msg, tt.wantHint)
		})
	}
}

func TestUserMessageUnknownDBusError(t *testing.T) {
	err := &bluez.AdapterError{
		Op:  "Connect",
		Err: dbus.Error{Name: "org.bluez.Error.Failed", Body: []interface{}{"le-connection-abort-by-local"}},
	}

	assert.Equal(t, err.Error(), userMessage(err))
}
