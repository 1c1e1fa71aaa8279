package config

import (
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Config holds all configuration for the bandwidth probe
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Probe     ProbeConfig     `mapstructure:"probe" yaml:"probe"`
	Web       WebConfig       `mapstructure:"web" yaml:"web"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig locates the SQLite sample store
type DatabaseConfig struct {
	Path        string        `mapstructure:"path" yaml:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// CollectorConfig controls when measurements run
type CollectorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Schedule is an optional cron expression that replaces Interval.
	Schedule      string        `mapstructure:"schedule" yaml:"schedule"`
	Backoff       time.Duration `mapstructure:"backoff" yaml:"backoff"`
	MetricsListen string        `mapstructure:"metrics_listen" yaml:"metrics_listen"`
}

// ProbeConfig selects and tunes the speedtest driver
type ProbeConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	Command       string        `mapstructure:"command" yaml:"command"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	AcceptLicense bool          `mapstructure:"accept_license" yaml:"accept_license"`
	Units         string        `mapstructure:"units" yaml:"units"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ServerCount   int           `mapstructure:"server_count" yaml:"server_count"`
}

// WebConfig holds dashboard server settings
type WebConfig struct {
	Listen    string  `mapstructure:"listen" yaml:"listen"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
	File   string `mapstructure:"file" yaml:"file"`
}

const (
	DriverExec    = "exec"
	DriverBuiltin = "builtin"

	UnitsBitsPerSecond = "bps"
	UnitsMbps          = "mbps"
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path:        "speedtest.db",
			BusyTimeout: 5 * time.Second,
		},
		Collector: CollectorConfig{
			Interval: 15 * time.Minute,
			Backoff:  5 * time.Minute,
		},
		Probe: ProbeConfig{
			Driver:        DriverExec,
			Command:       "speedtest",
			Args:          []string{"--json"},
			AcceptLicense: true,
			Units:         UnitsBitsPerSecond,
			Timeout:       2 * time.Minute,
			ServerCount:   5,
		},
		Web: WebConfig{
			Listen:    ":5000",
			RateLimit: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Normalize expands the home directory in paths and lower-cases enum values.
func (c *Config) Normalize() error {
	for _, p := range []*string{&c.Database.Path, &c.Log.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "cannot expand path %q", *p)
		}
		*p = expanded
	}
	c.Probe.Driver = strings.ToLower(strings.TrimSpace(c.Probe.Driver))
	c.Probe.Units = strings.ToLower(strings.TrimSpace(c.Probe.Units))
	c.Collector.Schedule = strings.TrimSpace(c.Collector.Schedule)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.BusyTimeout < 0 {
		return errors.New("database busy timeout cannot be negative")
	}
	if c.Collector.Schedule == "" {
		if c.Collector.Interval <= 0 || c.Collector.Interval > time.Hour {
			return errors.New("interval must be between 1m and 60m")
		}
		if c.Collector.Interval%time.Minute != 0 {
			return errors.New("interval must be a whole number of minutes")
		}
	}
	if c.Collector.Backoff <= 0 {
		return errors.New("backoff must be positive")
	}
	switch c.Probe.Driver {
	case DriverExec:
		if c.Probe.Command == "" {
			return errors.New("probe command cannot be empty")
		}
	case DriverBuiltin:
	default:
		return errors.Errorf("unknown probe driver %q", c.Probe.Driver)
	}
	if c.Probe.Units != UnitsBitsPerSecond && c.Probe.Units != UnitsMbps {
		return errors.Errorf("unknown probe units %q", c.Probe.Units)
	}
	if c.Probe.Timeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	if c.Web.Listen == "" {
		return errors.New("web listen address cannot be empty")
	}
	if c.Web.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	return nil
}
