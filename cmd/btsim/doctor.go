package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/internal/sysinfo"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host for BLE simulation readiness",
	Long: `Probe the host Bluetooth stack and report anything that would keep the
simulator from running: a missing or outdated BlueZ, an unreachable system
bus, a daemon that is not running, or a machine without adapters.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if _, err := configureLogger(cmd, nil); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	connect := func() (bluez.Bus, error) {
		conn, err := bluez.ConnectSystemBus()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	if failed := doctorReport(os.Stdout, sysinfo.NewProbe(nil), connect); failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("All checks passed")
	return nil
}

var (
	passMark = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
)

// doctorReport runs every readiness check, one line per check, and returns
// how many failed. The bus dial is injected so checks run against a
// scripted bus in tests.
func doctorReport(out io.Writer, probe *sysinfo.Probe, connect func() (bluez.Bus, error)) int {
	failed := 0
	fail := func(name string, err error) {
		failed++
		fmt.Fprintf(out, "%s  %s: %v\n", failMark("FAIL"), name, err)
	}
	pass := func(name, detail string) {
		fmt.Fprintf(out, "%s    %s: %s\n", passMark("ok"), name, detail)
	}

	info, err := probe.BlueZVersion()
	switch {
	case err != nil:
		fail("bluez version", err)
	case !info.Supported():
		fail("bluez version", fmt.Errorf("%s is older than %.2f", info.Raw, sysinfo.MinBlueZVersion))
	default:
		pass("bluez version", fmt.Sprintf("%s (via %s)", info.Raw, info.Source))
	}

	bus, err := connect()
	if err != nil {
		fail("system bus", err)
		fmt.Fprintln(out, "      remaining checks skipped without a bus connection")
		return failed
	}
	defer bus.Close()
	pass("system bus", "reachable")

	owned, err := bluez.DaemonPresent(bus)
	if err == nil && !owned {
		err = errors.New("org.bluez has no owner (is bluetoothd running?)")
	}
	if err != nil {
		fail("bluez daemon", err)
	} else {
		pass("bluez daemon", "org.bluez is owned")
	}

	infos, err := bluez.ListAdapters(bus)
	if err == nil && len(infos) == 0 {
		err = bluez.ErrNoAdapterFound
	}
	if err != nil {
		fail("adapters", err)
		return failed
	}
	powered := 0
	names := make([]string, 0, len(infos))
	for _, ai := range infos {
		if ai.Powered {
			powered++
		}
		names = append(names, ai.ShortName)
	}
	pass("adapters", fmt.Sprintf("%d found (%s), %d powered",
		len(infos), strings.Join(names, ", "), powered))

	return failed
}
