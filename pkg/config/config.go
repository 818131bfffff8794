// Package config holds the application configuration: scan and connect
// tuning, logging, and the event stream buffer size. Values come from
// struct defaults, optionally overridden by a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	LogLevel        string        `yaml:"log_level" default:"info"`
	ScanDuration    time.Duration `yaml:"scan_duration" default:"10s"`
	AllowDuplicates bool          `yaml:"allow_duplicates" default:"false"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"30s"`
	EventBuffer     int           `yaml:"event_buffer" default:"128"`
	OutputFormat    string        `yaml:"output_format" default:"table"`
}

// Default returns a Config populated from the struct defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. A missing file is not an
// error: the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output_format %q: must be table or json", c.OutputFormat)
	}
	return nil
}

// NewLogger creates a logger configured from the LogLevel field.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
