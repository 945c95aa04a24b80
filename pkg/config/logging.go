package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogConfig controls logger construction. File, when set, redirects
// output there instead of stderr; an unopenable file degrades back to
// stderr rather than failing startup.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty" default:"info"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" default:"text"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

func (c *LogConfig) validate() error {
	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Level)
		}
	}
	switch c.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Format)
	}
}

// NewLogger creates a configured logger instance.
func (c *LogConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()

	level := c.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.Level)
	}
	logger.SetLevel(parsed)

	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).WithField("file", c.File).
				Warn("Cannot open log file, logging to stderr")
		} else {
			logger.SetOutput(f)
		}
	}
	return logger, nil
}
