package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mmackelprang/BTSimulator/pkg/config"
)

// configureLogger builds the command's logger from the global logging flags,
// layered over base when a config file supplied one. Interactive commands
// pass a nil base and stay silent unless the user raises the level, so table
// and JSON output is never interleaved with log lines.
func configureLogger(cmd *cobra.Command, base *config.LogConfig) (*logrus.Logger, error) {
	cfg := config.LogConfig{Level: "panic"}
	if base != nil {
		cfg = *base
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Format = format
	}
	if file, _ := cmd.Flags().GetString("log-file"); file != "" {
		cfg.File = file
	}

	return cfg.NewLogger()
}
