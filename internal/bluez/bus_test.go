package bluez_test

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/testutils"
)

const nameHasOwnerMethod = "org.freedesktop.DBus.NameHasOwner"

func TestDaemonPresent(t *testing.T) {
	bus := testutils.NewFakeBus().
		HandleCall(nameHasOwnerMethod, func(path dbus.ObjectPath, args []interface{}) ([]interface{}, error) {
			assert.Equal(t, dbus.ObjectPath("/org/freedesktop/DBus"), path)
			require.Len(t, args, 1)
			assert.Equal(t, bluez.BusName, args[0])
			return []interface{}{true}, nil
		})

	owned, err := bluez.DaemonPresent(bus)

	require.NoError(t, err)
	assert.True(t, owned)
}

func TestDaemonPresentNameUnowned(t *testing.T) {
	bus := testutils.NewFakeBus().
		HandleCall(nameHasOwnerMethod, func(_ dbus.ObjectPath, _ []interface{}) ([]interface{}, error) {
			return []interface{}{false}, nil
		})

	owned, err := bluez.DaemonPresent(bus)

	require.NoError(t, err)
	assert.False(t, owned)
}

func TestDaemonPresentCallFailure(t *testing.T) {
	bus := testutils.NewFakeBus().
		FailCall(nameHasOwnerMethod, errors.New("connection closed"))

	_, err := bluez.DaemonPresent(bus)

	require.Error(t, err)
	var aerr *bluez.AdapterError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "NameHasOwner", aerr.Op)
}
