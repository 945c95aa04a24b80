package peripheral_test

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
	"github.com/mmackelprang/BTSimulator/peripheral"
)

const advPath = dbus.ObjectPath("/com/btsimulator/advertisement0")

func TestDefaultAdvertisementOptions(t *testing.T) {
	opts := peripheral.DefaultAdvertisementOptions()
	assert.Equal(t, "peripheral", opts.Type)
	assert.Empty(t, opts.LocalName)
	assert.False(t, opts.IncludeTxPower)
}

func TestNewAdvertisementNilArguments(t *testing.T) {
	adv := peripheral.NewAdvertisement(advPath, nil, nil)
	require.NotNil(t, adv)
	assert.Equal(t, advPath, adv.Path())

	props, derr := adv.GetAll(bluez.AdvertisementInterface)
	require.Nil(t, derr)
	assert.Equal(t, "peripheral", props["Type"].Value())
}

func TestAdvertisementPropertiesOmitUnsetFields(t *testing.T) {
	adv := peripheral.NewAdvertisement(advPath, peripheral.DefaultAdvertisementOptions(), nil)

	props, derr := adv.GetAll(bluez.AdvertisementInterface)
	require.Nil(t, derr)
	assert.Len(t, props, 2)
	assert.Contains(t, props, "Type")
	assert.Contains(t, props, "IncludeTxPower")
	assert.NotContains(t, props, "LocalName")
	assert.NotContains(t, props, "ServiceUUIDs")
	assert.NotContains(t, props, "ManufacturerData")
}

func TestAdvertisementExpandsShortServiceUUIDs(t *testing.T) {
	opts := peripheral.DefaultAdvertisementOptions()
	opts.ServiceUUIDs = []string{"180f", "6e400001-b5a3-f393-e0a9-e50e24dcca9e"}
	adv := peripheral.NewAdvertisement(advPath, opts, nil)

	props, derr := adv.GetAll(bluez.AdvertisementInterface)
	require.Nil(t, derr)
	assert.Equal(t, []string{
		"0000180f-0000-1000-8000-00805f9b34fb",
		"6e400001-b5a3-f393-e0a9-e50e24dcca9e",
	}, props["ServiceUUIDs"].Value())
}

func TestAdvertisementGet(t *testing.T) {
	opts := peripheral.DefaultAdvertisementOptions()
	opts.LocalName = "SimBattery"
	adv := peripheral.NewAdvertisement(advPath, opts, nil)

	v, derr := adv.Get(bluez.AdvertisementInterface, "LocalName")
	require.Nil(t, derr)
	assert.Equal(t, "SimBattery", v.Value())

	_, derr = adv.Get(bluez.AdvertisementInterface, "TxPower")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", derr.Name)
}

func TestAdvertisementRejectsForeignInterface(t *testing.T) {
	adv := peripheral.NewAdvertisement(advPath, nil, nil)

	_, derr := adv.GetAll(bluez.AdapterInterface)
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", derr.Name)

	_, derr = adv.Get(bluez.AdapterInterface, "Type")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", derr.Name)
}

func TestAdvertisementPropertiesAreReadOnly(t *testing.T) {
	adv := peripheral.NewAdvertisement(advPath, nil, nil)

	derr := adv.Set(bluez.AdvertisementInterface, "Type", dbus.MakeVariant("broadcast"))
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.PropertyReadOnly", derr.Name)
}

func TestAdvertisementRelease(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	adv := peripheral.NewAdvertisement(advPath, nil, logger)

	require.Nil(t, adv.Release())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, string(advPath), entry.Data["path"])
}

func TestAdvertisementExportTo(t *testing.T) {
	fb := testutils.NewFakeBus()
	adv := peripheral.NewAdvertisement(advPath, nil, nil)

	require.NoError(t, adv.ExportTo(fb))
	assert.Equal(t, 3, fb.ExportCount())
	for _, iface := range []string{
		bluez.AdvertisementInterface,
		bluez.PropertiesInterface,
		bluez.IntrospectableInterface,
	} {
		_, ok := fb.Exported(advPath, iface)
		assert.True(t, ok, "missing export for %s", iface)
	}

	adv.UnexportFrom(fb)
	assert.Zero(t, fb.ExportCount())
}

func TestAdvertisementExportToRollsBackOnFailure(t *testing.T) {
	fb := testutils.NewFakeBus()
	fb.FailExport(advPath, bluez.PropertiesInterface, errors.New("no object server"))
	adv := peripheral.NewAdvertisement(advPath, nil, nil)

	require.Error(t, adv.ExportTo(fb))
	assert.Zero(t, fb.ExportCount())

	// A clean bus accepts the same advertisement afterwards.
	clean := testutils.NewFakeBus()
	require.NoError(t, adv.ExportTo(clean))
	assert.Equal(t, 3, clean.ExportCount())
}
