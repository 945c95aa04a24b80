package bluez_test

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/testutils"
)

func TestListAdapters(t *testing.T) {
	bus := testutils.NewFakeBus().
		WithObject("/org/bluez/hci1", bluez.AdapterInterface, testutils.AdapterProps("11:22:33:44:55:66", "second", false)).
		WithObject("/org/bluez/hci0", bluez.AdapterInterface, testutils.AdapterProps("AA:BB:CC:DD:EE:FF", "first", true)).
		WithObject("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", bluez.DeviceInterface,
			testutils.NewDeviceBuilder().WithAddress("AA:BB:CC:DD:EE:FF").Build())

	infos, err := bluez.ListAdapters(bus)
	require.NoError(t, err)
	require.Len(t, infos, 2, "device objects must not be listed as adapters")

	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0"), infos[0].Path)
	assert.Equal(t, "hci0", infos[0].ShortName)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", infos[0].Address)
	assert.True(t, infos[0].Powered)
	assert.Equal(t, "hci1", infos[1].ShortName)
}

func TestListAdaptersToleratesMissingProperties(t *testing.T) {
	bus := testutils.NewFakeBus().
		WithObject("/org/bluez/hci0", bluez.AdapterInterface, bluez.PropertyMap{})

	infos, err := bluez.ListAdapters(bus)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "", infos[0].Address)
	assert.Equal(t, "", infos[0].Alias)
	assert.False(t, infos[0].Powered)
}

func TestListAdaptersTransportFailure(t *testing.T) {
	cause := errors.New("daemon absent")
	bus := testutils.NewFakeBus().
		FailCall(bluez.ObjectManagerInterface+".GetManagedObjects", cause)

	_, err := bluez.ListAdapters(bus)
	require.Error(t, err)

	var aerr *bluez.AdapterError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "GetManagedObjects", aerr.Op)
	assert.True(t, errors.Is(err, cause))
}

func TestSelectAdapter(t *testing.T) {
	twoAdapters := func() *testutils.FakeBus {
		return testutils.NewFakeBus().
			WithObject("/org/x/hci0", bluez.AdapterInterface, testutils.AdapterProps("AA:00:00:00:00:00", "zero", true)).
			WithObject("/org/x/hci1", bluez.AdapterInterface, testutils.AdapterProps("AA:00:00:00:00:01", "one", true))
	}

	t.Run("configured short name matches", func(t *testing.T) {
		adapter, err := bluez.SelectAdapter(twoAdapters(), "hci1", nil)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci1"), adapter.Path())
	})

	t.Run("configured exact path matches", func(t *testing.T) {
		adapter, err := bluez.SelectAdapter(twoAdapters(), "/org/x/hci1", nil)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci1"), adapter.Path())
	})

	t.Run("configured path suffix matches", func(t *testing.T) {
		adapter, err := bluez.SelectAdapter(twoAdapters(), "x/hci1", nil)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci1"), adapter.Path())
	})

	t.Run("absent name falls back to first with warning", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()

		adapter, err := bluez.SelectAdapter(twoAdapters(), "hci9", logger)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci0"), adapter.Path())

		require.NotEmpty(t, hook.Entries)
		warn := hook.LastEntry()
		assert.Equal(t, logrus.WarnLevel, warn.Level)
		assert.Equal(t, "hci9", warn.Data["configured"])
	})

	t.Run("no configuration takes first without warning", func(t *testing.T) {
		logger, hook := logtest.NewNullLogger()

		adapter, err := bluez.SelectAdapter(twoAdapters(), "", logger)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci0"), adapter.Path())
		assert.Empty(t, hook.Entries)
	})

	t.Run("single adapter selected regardless of configuration", func(t *testing.T) {
		bus := testutils.NewFakeBus().
			WithObject("/org/x/hci0", bluez.AdapterInterface, testutils.AdapterProps("AA:00:00:00:00:00", "zero", true))

		adapter, err := bluez.SelectAdapter(bus, "hci9", nil)
		require.NoError(t, err)
		assert.Equal(t, dbus.ObjectPath("/org/x/hci0"), adapter.Path())
	})

	t.Run("zero adapters", func(t *testing.T) {
		_, err := bluez.SelectAdapter(testutils.NewFakeBus(), "", nil)
		assert.ErrorIs(t, err, bluez.ErrNoAdapterFound)
	})
}
