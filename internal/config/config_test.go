package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "speedtest.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Minute, cfg.Collector.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Collector.Backoff)
	assert.Equal(t, DriverExec, cfg.Probe.Driver)
	assert.Equal(t, []string{"--json"}, cfg.Probe.Args)
	assert.Equal(t, 2*time.Minute, cfg.Probe.Timeout)
	assert.True(t, cfg.Probe.AcceptLicense)
	assert.Equal(t, ":5000", cfg.Web.Listen)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: /var/lib/bwprobe/samples.db
collector:
  interval: 30m
probe:
  command: /usr/local/bin/speedtest-cli
  args: ["--json", "--secure"]
  units: MBPS
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("BWPROBE_WEB_LISTEN", "127.0.0.1:8081")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bwprobe/samples.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Minute, cfg.Collector.Interval)
	assert.Equal(t, "/usr/local/bin/speedtest-cli", cfg.Probe.Command)
	assert.Equal(t, []string{"--json", "--secure"}, cfg.Probe.Args)
	assert.Equal(t, UnitsMbps, cfg.Probe.Units)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:8081", cfg.Web.Listen)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collector:\n  interval: 7s\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Collector.Interval = 0 }, wantErr: true},
		{name: "interval above one hour", mutate: func(c *Config) { c.Collector.Interval = 2 * time.Hour }, wantErr: true},
		{name: "fractional minutes", mutate: func(c *Config) { c.Collector.Interval = 90 * time.Second }, wantErr: true},
		{name: "cron schedule ignores interval", mutate: func(c *Config) {
			c.Collector.Schedule = "*/10 * * * *"
			c.Collector.Interval = 0
		}},
		{name: "zero backoff", mutate: func(c *Config) { c.Collector.Backoff = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Probe.Driver = "iperf" }, wantErr: true},
		{name: "builtin driver without command", mutate: func(c *Config) {
			c.Probe.Driver = DriverBuiltin
			c.Probe.Command = ""
		}},
		{name: "exec driver without command", mutate: func(c *Config) { c.Probe.Command = "" }, wantErr: true},
		{name: "unknown units", mutate: func(c *Config) { c.Probe.Units = "kbps" }, wantErr: true},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Probe.Timeout = 0 }, wantErr: true},
		{name: "negative rate limit", mutate: func(c *Config) { c.Web.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize_ExpandsHome(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "~/bwprobe/speedtest.db"
	cfg.Probe.Driver = " EXEC "

	require.NoError(t, cfg.Normalize())
	assert.NotContains(t, cfg.Database.Path, "~")
	assert.Equal(t, DriverExec, cfg.Probe.Driver)
}

func TestYAML(t *testing.T) {
	b, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "path: speedtest.db")
	assert.Contains(t, string(b), "interval: 15m0s")
}
