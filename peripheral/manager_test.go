package peripheral_test

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/testutils"
	"github.com/mmackelprang/BTSimulator/peripheral"
	"github.com/mmackelprang/BTSimulator/pkg/config"
)

const (
	adapterPath = dbus.ObjectPath("/org/bluez/hci0")
	appRoot     = dbus.ObjectPath(config.DefaultAppPath)

	registerAppMethod   = bluez.GattManagerInterface + ".RegisterApplication"
	unregisterAppMethod = bluez.GattManagerInterface + ".UnregisterApplication"
	registerAdvMethod   = bluez.AdvertisingManagerInterface + ".RegisterAdvertisement"
	unregisterAdvMethod = bluez.AdvertisingManagerInterface + ".UnregisterAdvertisement"
)

func batteryConfig() *config.DeviceConfig {
	return &config.DeviceConfig{
		Name: "SimBattery",
		Advertising: config.AdvertisingConfig{
			ManufacturerData: map[uint16]string{0x004c: "0215"},
			IncludeTxPower:   true,
		},
		Services: []config.ServiceConfig{{
			UUID: "180f",
			Characteristics: []config.CharacteristicConfig{{
				UUID:        "2a19",
				Flags:       []string{"read", "notify"},
				Value:       "64",
				Description: "Battery Level",
			}},
		}},
	}
}

func newTestManager(t *testing.T) (*peripheral.Manager, *testutils.FakeBus) {
	t.Helper()
	fb := testutils.NewFakeBus()
	logger, _ := logtest.NewNullLogger()
	return peripheral.NewManager(bluez.NewAdapter(fb, adapterPath), logger), fb
}

func TestRegisterApplication(t *testing.T) {
	m, fb := newTestManager(t)
	assert.Equal(t, peripheral.StateUnregistered, m.State())

	require.NoError(t, m.RegisterApplication(batteryConfig()))
	assert.Equal(t, peripheral.StateRegistered, m.State())
	require.NotNil(t, m.Application())
	assert.Equal(t, appRoot, m.Application().Path())

	calls := fb.CallsTo(registerAppMethod)
	require.Len(t, calls, 1)
	assert.Equal(t, adapterPath, calls[0].Path)
	assert.Equal(t, appRoot, calls[0].Args[0])

	// Root object manager, service, characteristic and descriptor are all
	// on the bus before the daemon is asked to walk them.
	_, ok := fb.Exported(appRoot, bluez.ObjectManagerInterface)
	assert.True(t, ok)
	_, ok = fb.Exported(appRoot+"/service0000/char0000", bluez.CharacteristicInterface)
	assert.True(t, ok)
	_, ok = fb.Exported(appRoot+"/service0000/char0000/desc0000", bluez.DescriptorInterface)
	assert.True(t, ok)
	assert.Equal(t, 10, fb.ExportCount())
}

func TestRegisterApplicationBuildsModelFromConfig(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))

	char, ok := m.Characteristic("2a19")
	require.True(t, ok)
	assert.Equal(t, []byte{0x64}, char.Value())

	descs := char.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "2901", descs[0].UUID())
	assert.Equal(t, []byte("Battery Level"), descs[0].Value())
}

func TestRegisterApplicationTwice(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	first := m.Application()

	err := m.RegisterApplication(batteryConfig())
	assert.ErrorIs(t, err, peripheral.ErrAlreadyRegistered)

	// The live registration is untouched.
	assert.Equal(t, peripheral.StateRegistered, m.State())
	assert.Same(t, first, m.Application())
	assert.Len(t, fb.CallsTo(registerAppMethod), 1)
}

func TestRegisterApplicationInvalidConfig(t *testing.T) {
	m, fb := newTestManager(t)

	err := m.RegisterApplication(&config.DeviceConfig{})
	var invalid *peripheral.InvalidConfigError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 2)
	assert.Contains(t, err.Error(), "device name is required")
	assert.Contains(t, err.Error(), "at least one service is required")

	// Nothing reached the bus.
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Empty(t, fb.Calls())
	assert.Zero(t, fb.ExportCount())
}

func TestRegisterApplicationCollectsEveryConfigError(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := batteryConfig()
	cfg.Address = "not-a-mac"
	cfg.Services[0].Characteristics[0].Flags = []string{"levitate"}
	cfg.Services[0].Characteristics[0].Value = "zz"

	err := m.RegisterApplication(cfg)
	var invalid *peripheral.InvalidConfigError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Errors, 3)
}

func TestRegisterApplicationDaemonFailure(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailCall(registerAppMethod, errors.New("org.bluez.Error.Failed: busy"))

	err := m.RegisterApplication(batteryConfig())
	require.Error(t, err)
	assert.NotErrorIs(t, err, peripheral.ErrAlreadyRegistered)

	// The partially built model is discarded and the exports rolled back.
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Nil(t, m.Application())
	assert.Zero(t, fb.ExportCount())

	// A retry is a fresh registration attempt, not a state violation.
	err = m.RegisterApplication(batteryConfig())
	require.Error(t, err)
	assert.NotErrorIs(t, err, peripheral.ErrAlreadyRegistered)
	assert.Len(t, fb.CallsTo(registerAppMethod), 2)
}

func TestRegisterApplicationExportFailure(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailExport(appRoot+"/service0000/char0000", bluez.CharacteristicInterface, errors.New("no object server"))

	err := m.RegisterApplication(batteryConfig())
	require.Error(t, err)
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Zero(t, fb.ExportCount())
	assert.Empty(t, fb.CallsTo(registerAppMethod))
}

func TestRegisterApplicationUsesConfiguredPath(t *testing.T) {
	m, fb := newTestManager(t)
	cfg := batteryConfig()
	cfg.AppPath = "/io/btsim/custom"

	require.NoError(t, m.RegisterApplication(cfg))
	calls := fb.CallsTo(registerAppMethod)
	require.Len(t, calls, 1)
	assert.Equal(t, dbus.ObjectPath("/io/btsim/custom"), calls[0].Args[0])

	require.NoError(t, m.RegisterAdvertisement())
	advCalls := fb.CallsTo(registerAdvMethod)
	require.Len(t, advCalls, 1)
	assert.Equal(t, dbus.ObjectPath("/io/btsim/advertisement0"), advCalls[0].Args[0])
}

func TestAdvertisementPathAtRootLevelApplication(t *testing.T) {
	m, fb := newTestManager(t)
	cfg := batteryConfig()
	cfg.AppPath = "/app"

	require.NoError(t, m.RegisterApplication(cfg))
	require.NoError(t, m.RegisterAdvertisement())

	calls := fb.CallsTo(registerAdvMethod)
	require.Len(t, calls, 1)
	assert.Equal(t, dbus.ObjectPath("/advertisement0"), calls[0].Args[0])
}

func TestRegisterAdvertisementRequiresApplication(t *testing.T) {
	m, fb := newTestManager(t)

	err := m.RegisterAdvertisement()
	assert.ErrorIs(t, err, peripheral.ErrNotRegistered)
	assert.False(t, m.Advertising())
	assert.Empty(t, fb.Calls())
}

func TestRegisterAdvertisement(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	require.NoError(t, m.RegisterAdvertisement())
	assert.True(t, m.Advertising())

	advPath := dbus.ObjectPath("/com/btsimulator/advertisement0")
	calls := fb.CallsTo(registerAdvMethod)
	require.Len(t, calls, 1)
	assert.Equal(t, advPath, calls[0].Args[0])

	v, ok := fb.Exported(advPath, bluez.AdvertisementInterface)
	require.True(t, ok)
	adv, ok := v.(*peripheral.Advertisement)
	require.True(t, ok)

	props, derr := adv.GetAll(bluez.AdvertisementInterface)
	require.Nil(t, derr)
	assert.Equal(t, "peripheral", props["Type"].Value())
	assert.Equal(t, "SimBattery", props["LocalName"].Value())
	assert.Equal(t, true, props["IncludeTxPower"].Value())
	assert.Equal(t, []string{"0000180f-0000-1000-8000-00805f9b34fb"}, props["ServiceUUIDs"].Value())

	md, ok := props["ManufacturerData"].Value().(map[uint16]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, []byte{0x02, 0x15}, md[0x004c].Value())
}

func TestRegisterAdvertisementPrefersConfiguredLocalName(t *testing.T) {
	m, fb := newTestManager(t)
	cfg := batteryConfig()
	cfg.Advertising.LocalName = "BatterySim Pro"

	require.NoError(t, m.RegisterApplication(cfg))
	require.NoError(t, m.RegisterAdvertisement())

	v, ok := fb.Exported("/com/btsimulator/advertisement0", bluez.AdvertisementInterface)
	require.True(t, ok)
	props, derr := v.(*peripheral.Advertisement).GetAll(bluez.AdvertisementInterface)
	require.Nil(t, derr)
	assert.Equal(t, "BatterySim Pro", props["LocalName"].Value())
}

func TestRegisterAdvertisementTwice(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	require.NoError(t, m.RegisterAdvertisement())

	err := m.RegisterAdvertisement()
	assert.ErrorIs(t, err, peripheral.ErrAlreadyAdvertising)
	assert.Len(t, fb.CallsTo(registerAdvMethod), 1)
}

func TestRegisterAdvertisementDaemonFailure(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailCall(registerAdvMethod, errors.New("org.bluez.Error.NotPermitted"))
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	exported := fb.ExportCount()

	err := m.RegisterAdvertisement()
	require.Error(t, err)
	assert.False(t, m.Advertising())

	// The advertisement's exports are rolled back; the application stays up.
	assert.Equal(t, exported, fb.ExportCount())
	_, ok := fb.Exported("/com/btsimulator/advertisement0", bluez.AdvertisementInterface)
	assert.False(t, ok)
	assert.Equal(t, peripheral.StateRegistered, m.State())
}

func TestUnregisterApplicationWhenIdle(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.UnregisterApplication())
	assert.Empty(t, fb.Calls())
	assert.Equal(t, peripheral.StateUnregistered, m.State())
}

func TestUnregisterApplicationWithdrawsAdvertisementFirst(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	require.NoError(t, m.RegisterAdvertisement())

	require.NoError(t, m.UnregisterApplication())

	names := fb.MethodNames()
	require.GreaterOrEqual(t, len(names), 2)
	assert.Equal(t, []string{unregisterAdvMethod, unregisterAppMethod}, names[len(names)-2:])

	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Nil(t, m.Application())
	assert.False(t, m.Advertising())
	assert.Zero(t, fb.ExportCount())
}

func TestUnregisterApplicationWithoutAdvertisement(t *testing.T) {
	m, fb := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))

	require.NoError(t, m.UnregisterApplication())
	assert.Empty(t, fb.CallsTo(unregisterAdvMethod))
	assert.Len(t, fb.CallsTo(unregisterAppMethod), 1)
	assert.Zero(t, fb.ExportCount())
}

func TestUnregisterApplicationCompletesDespiteAdvertisementError(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailCall(unregisterAdvMethod, errors.New("org.bluez.Error.DoesNotExist"))
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	require.NoError(t, m.RegisterAdvertisement())

	err := m.UnregisterApplication()
	require.Error(t, err)

	// The application was still withdrawn and local state fully reset.
	assert.Len(t, fb.CallsTo(unregisterAppMethod), 1)
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Zero(t, fb.ExportCount())

	// The manager is reusable after a noisy teardown.
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	assert.Equal(t, peripheral.StateRegistered, m.State())
}

func TestUnregisterApplicationReportsApplicationError(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailCall(unregisterAppMethod, errors.New("org.bluez.Error.DoesNotExist"))
	require.NoError(t, m.RegisterApplication(batteryConfig()))

	err := m.UnregisterApplication()
	require.Error(t, err)
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Zero(t, fb.ExportCount())
}

func TestCloseSwallowsTeardownErrors(t *testing.T) {
	m, fb := newTestManager(t)
	fb.FailCall(unregisterAppMethod, errors.New("org.bluez.Error.Failed"))
	require.NoError(t, m.RegisterApplication(batteryConfig()))

	assert.NoError(t, m.Close())
	assert.Equal(t, peripheral.StateUnregistered, m.State())
	assert.Zero(t, fb.ExportCount())
}

func TestCloseWhenIdle(t *testing.T) {
	m, fb := newTestManager(t)
	assert.NoError(t, m.Close())
	assert.Empty(t, fb.Calls())
}

func TestCharacteristicLookupAcceptsAnyUUIDForm(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))

	for _, form := range []string{"2a19", "0x2A19", "00002a19", "00002a19-0000-1000-8000-00805f9b34fb"} {
		char, ok := m.Characteristic(form)
		require.True(t, ok, "lookup %q", form)
		assert.Equal(t, "2a19", char.UUID())
	}

	_, ok := m.Characteristic("2a00")
	assert.False(t, ok)
}

func TestCharacteristicLookupMatchesTreeOrderOnCollision(t *testing.T) {
	fb := testutils.NewFakeBus()
	logger, hook := logtest.NewNullLogger()
	m := peripheral.NewManager(bluez.NewAdapter(fb, adapterPath), logger)

	cfg := batteryConfig()
	cfg.Services = append(cfg.Services, config.ServiceConfig{
		UUID: "1810",
		Characteristics: []config.CharacteristicConfig{{
			UUID:  "2a19",
			Flags: []string{"read"},
			Value: "0a",
		}},
	})
	require.NoError(t, m.RegisterApplication(cfg))

	// The registry agrees with the tree walk: the first service's
	// characteristic wins, and the collision is logged.
	char, ok := m.Characteristic("2a19")
	require.True(t, ok)
	assert.Equal(t, []byte{0x64}, char.Value())

	fromTree, ok := m.Application().FindCharacteristic("2a19")
	require.True(t, ok)
	assert.Same(t, fromTree, char)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["uuid"] == "2a19" {
			warned = true
		}
	}
	assert.True(t, warned, "collision should be logged")
}

func TestCharacteristicRegistryClearedOnUnregister(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.RegisterApplication(batteryConfig()))
	_, ok := m.Characteristic("2a19")
	require.True(t, ok)

	require.NoError(t, m.UnregisterApplication())
	_, ok = m.Characteristic("2a19")
	assert.False(t, ok)

	// Re-registering with a different model swaps the registry wholesale.
	cfg := batteryConfig()
	cfg.Services[0].Characteristics[0].UUID = "2a1c"
	require.NoError(t, m.RegisterApplication(cfg))
	_, ok = m.Characteristic("2a19")
	assert.False(t, ok)
	_, ok = m.Characteristic("2a1c")
	assert.True(t, ok)
}
