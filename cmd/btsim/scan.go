package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
	"github.com/mmackelprang/BTSimulator/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy devices and enumerate their GATT databases.

The adapter discovers for the given duration, then every device below it is
listed. Devices whose services are already resolved, and devices admitted by
the resolve policy (paired or trusted by default, everything with
--resolve-all), get their full service, characteristic, and descriptor tree
walked. Readable characteristics that need no encryption are read unless
--no-values is given.`,
	Example: `  btsim scan
  btsim scan -d 30s --gatt
  btsim scan --resolve-all -f json > devices.json`,
	RunE: runScan,
}

var (
	scanDuration   time.Duration
	scanFormat     string
	scanAdapter    string
	scanResolveAll bool
	scanNoValues   bool
	scanShowGatt   bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Discovery window (0 scans the current device list only)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanAdapter, "adapter", "a", "", "Adapter to scan with (hci0, full path, or path suffix)")
	scanCmd.Flags().BoolVar(&scanResolveAll, "resolve-all", false, "Connect to every device for GATT resolution, not just paired or trusted ones")
	scanCmd.Flags().BoolVar(&scanNoValues, "no-values", false, "Skip reading characteristic values")
	scanCmd.Flags().BoolVarP(&scanShowGatt, "gatt", "g", false, "Print resolved GATT trees below the table")
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	logger, err := configureLogger(cmd, nil)
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

	adapter, err := bluez.SelectAdapter(conn, scanAdapter, logger)
	if err != nil {
		return err
	}

	opts := scanner.DefaultScanOptions()
	opts.Duration = scanDuration
	opts.ReadValues = !scanNoValues
	if scanResolveAll {
		opts.ResolvePolicy = scanner.ResolveAll
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewProgressPrinter("Scanning for devices", "Scanning", scanDuration)
	progress.Start()
	defer progress.Stop()

	// Cancellation surfaces as a normal early return with partial results.
	devices, err := scanner.NewScanner(adapter, logger).Scan(ctx, opts, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayScanJSON(os.Stdout, devices)
	}
	if err := displayScanTable(os.Stdout, devices); err != nil {
		return err
	}
	if scanShowGatt {
		displayGattTrees(os.Stdout, devices)
	}
	return nil
}

func displayScanTable(out io.Writer, devices []scanner.ScannedDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tPAIRED\tRESOLVED\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		// RSSI zero means the property was absent, not a real level.
		rssi := "-"
		if dev.RSSI != 0 {
			rssi = fmt.Sprintf("%d dBm", dev.RSSI)
		}

		services := strings.Join(dev.UUIDs, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, dev.Address, rssi, yesNo(dev.Paired), yesNo(dev.ServicesResolved), services)
	}

	return w.Flush()
}

func displayScanJSON(out io.Writer, devices []scanner.ScannedDevice) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

var (
	addrColor  = color.New(color.FgCyan, color.Bold)
	uuidColor  = color.New(color.FgCyan)
	flagColor  = color.New(color.FgYellow)
	valueColor = color.New(color.FgGreen)
)

// displayGattTrees prints the resolved service hierarchy of every device
// that has one. Devices without resolved services are skipped.
func displayGattTrees(out io.Writer, devices []scanner.ScannedDevice) {
	for _, dev := range devices {
		if len(dev.Services) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s  %s\n", addrColor.Sprint(dev.Address), dev.DisplayName())
		for _, svc := range dev.Services {
			kind := "secondary"
			if svc.Primary {
				kind = "primary"
			}
			fmt.Fprintf(out, "  service %s (%s)\n", uuidColor.Sprint(svc.UUID), kind)
			for _, ch := range svc.Characteristics {
				fmt.Fprintf(out, "    char %s [%s]\n",
					uuidColor.Sprint(ch.UUID), flagColor.Sprint(strings.Join(ch.Flags, " ")))
				if ch.Value != nil {
					fmt.Fprintf(out, "      value: %s\n", valueColor.Sprint(formatValue(ch.Value)))
				}
				for _, desc := range ch.Descriptors {
					fmt.Fprintf(out, "      desc %s", uuidColor.Sprint(desc.UUID))
					if desc.Value != nil {
						fmt.Fprintf(out, "  value: %s", valueColor.Sprint(formatValue(desc.Value)))
					}
					fmt.Fprintln(out)
				}
			}
		}
	}
}

// formatValue renders printable payloads as quoted text and everything
// else as hex.
func formatValue(value []byte) string {
	if len(value) == 0 {
		return "(empty)"
	}
	for _, b := range value {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(value)
		}
	}
	return fmt.Sprintf("%q", value)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
