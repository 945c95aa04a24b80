package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	btsimulator "github.com/mmackelprang/BTSimulator"
	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/gatt"
	"github.com/mmackelprang/BTSimulator/monitor"
	"github.com/mmackelprang/BTSimulator/peripheral"
	"github.com/mmackelprang/BTSimulator/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a simulated BLE peripheral",
	Long: `Register a simulated GATT peripheral with BlueZ and serve it until
interrupted.

The device definition comes from --config (JSON or YAML); without one an
embedded battery device is served. While running, central connections and
disconnections are reported, and notifying characteristics push their
current value to each newly connected central.`,
	Example: `  btsim serve
  btsim serve --config heart-rate.yaml
  btsim serve --adapter hci1 --no-advertise`,
	RunE: runServe,
}

var (
	serveConfigPath  string
	serveAdapter     string
	serveNoAdvertise bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Device definition file (JSON or YAML); embedded battery device when omitted")
	serveCmd.Flags().StringVarP(&serveAdapter, "adapter", "a", "", "Adapter to serve on (hci0, full path, or path suffix); overrides the config file")
	serveCmd.Flags().BoolVar(&serveNoAdvertise, "no-advertise", false, "Register the GATT tree without advertising it")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadDeviceConfig(serveConfigPath)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, &cfg.Logging)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	conn, err := bluez.ConnectSystemBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	adapterName := serveAdapter
	if adapterName == "" {
		adapterName = cfg.Adapter
	}
	adapter, err := bluez.SelectAdapter(conn, adapterName, logger)
	if err != nil {
		return err
	}
	if err := adapter.SetPowered(true); err != nil {
		return fmt.Errorf("powering adapter %s: %w", adapter.ShortName(), err)
	}

	mgr := peripheral.NewManager(adapter, logger)
	if err := mgr.RegisterApplication(cfg); err != nil {
		return err
	}
	defer mgr.Close()

	if !serveNoAdvertise {
		if err := mgr.RegisterAdvertisement(); err != nil {
			return err
		}
	}

	wireBatteryDrain(mgr, logger)

	mon := monitor.NewMonitor(conn, nil, logger)
	if err := mon.StartMonitoring(); err != nil {
		return err
	}
	defer mon.StopMonitoring()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down...")
		cancel()
	}()

	fmt.Printf("Serving %q on %s (Ctrl+C to stop)\n",
		cfg.Advertising.LocalNameOr(cfg.Name), adapter.ShortName())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-mon.Events():
			if !ok {
				return nil
			}
			handleCentralEvent(mgr, ev)
		}
	}
}

// loadDeviceConfig reads the user's device definition, falling back to the
// embedded battery device when no path is given.
func loadDeviceConfig(path string) (*config.DeviceConfig, error) {
	if path == "" {
		return config.Parse(btsimulator.DefaultDeviceConfig, ".json")
	}
	return config.Load(path)
}

// handleCentralEvent reports central activity and pushes current values to
// a newly connected central.
func handleCentralEvent(mgr *peripheral.Manager, ev monitor.Event) {
	switch ev.Kind {
	case monitor.EventConnected:
		fmt.Printf("Central %s connected\n", ev.Address)
		pushCurrentValues(mgr)
	case monitor.EventDisconnected:
		fmt.Printf("Central %s disconnected\n", ev.Address)
	}
}

// pushCurrentValues re-commits every notifying characteristic so a fresh
// subscriber sees the present state without an initial read.
func pushCurrentValues(mgr *peripheral.Manager) {
	app := mgr.Application()
	if app == nil {
		return
	}
	for _, svc := range app.Services() {
		for _, ch := range svc.Characteristics() {
			if gatt.HasFlag(ch.Flags(), gatt.FlagNotify) {
				ch.SetValue(ch.Value())
			}
		}
	}
}

// batteryLevelUUID is the Battery Level characteristic the drain hook
// attaches to.
const batteryLevelUUID = "2a19"

// wireBatteryDrain makes a simulated battery lose one percent per read,
// stopping at zero. Devices without a battery level characteristic are
// served exactly as configured.
func wireBatteryDrain(mgr *peripheral.Manager, logger *logrus.Logger) {
	batt, ok := mgr.Characteristic(batteryLevelUUID)
	if !ok {
		return
	}
	batt.SetReadHook(batteryDrainHook)
	logger.Info("Battery level drains one percent per read")
}

// batteryDrainHook lowers the first value byte by one on every read,
// bottoming out at zero. The incoming slice is never mutated.
func batteryDrainHook(current []byte, _ bluez.PropertyMap) ([]byte, error) {
	if len(current) == 0 || current[0] == 0 {
		return current, nil
	}
	drained := append([]byte(nil), current...)
	drained[0]--
	return drained, nil
}
