package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmackelprang/BTSimulator/internal/bluez"
)

// adaptersCmd represents the adapters command
var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List Bluetooth adapters",
	Long: `List every Bluetooth adapter the BlueZ daemon exposes, with its
address, alias, and power state.`,
	RunE: runAdapters,
}

var adaptersFormat string

func init() {
	adaptersCmd.Flags().StringVarP(&adaptersFormat, "format", "f", "table", "Output format (table, json)")
}

func runAdapters(cmd *cobra.Command, args []string) error {
	if adaptersFormat != "table" && adaptersFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", adaptersFormat)
	}

	if _, err := configureLogger(cmd, nil); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	conn, err := bluez.ConnectSystemBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	infos, err := bluez.ListAdapters(conn)
	if err != nil {
		return err
	}

	if adaptersFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}
	return displayAdaptersTable(os.Stdout, infos)
}

func displayAdaptersTable(out io.Writer, infos []bluez.AdapterInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No adapters found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tADDRESS\tALIAS\tPOWERED")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.ShortName, info.Path, info.Address, info.Alias, yesNo(info.Powered))
	}
	return w.Flush()
}
