package main

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// D-Bus error names worth translating for users. Everything else is shown
// verbatim.
const (
	dbusErrAccessDenied   = "org.freedesktop.DBus.Error.AccessDenied"
	dbusErrServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	dbusErrNoOwner        = "org.freedesktop.DBus.Error.NameHasNoOwner"
	dbusErrNoReply        = "org.freedesktop.DBus.Error.NoReply"
)

// userMessage rewrites common low-level failures into actionable messages.
// Unrecognized errors pass through unchanged.
func userMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, bluez.ErrNoAdapterFound) {
		return "no Bluetooth adapter found (is the controller attached and not blocked by rfkill?)"
	}

	var derr dbus.Error
	if errors.As(err, &derr) {
		switch derr.Name {
		case dbusErrAccessDenied:
			return fmt.Sprintf("%s\nHint: run as root, or install a D-Bus policy granting this user access to org.bluez", err)
		case dbusErrServiceUnknown, dbusErrNoOwner:
			return fmt.Sprintf("%s\nHint: the BlueZ daemon does not appear to be running (try: systemctl start bluetooth)", err)
		case dbusErrNoReply:
			return fmt.Sprintf("%s\nHint: the BlueZ daemon did not answer in time; it may be hung or restarting", err)
		}
	}

	return err.Error()
}
