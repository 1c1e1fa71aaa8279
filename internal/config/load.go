package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	yaml "go.yaml.in/yaml/v3"
)

// EnvPrefix is prepended to environment overrides, e.g. BWPROBE_DATABASE_PATH.
const EnvPrefix = "BWPROBE"

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.busy_timeout", def.Database.BusyTimeout)

	v.SetDefault("collector.interval", def.Collector.Interval)
	v.SetDefault("collector.schedule", def.Collector.Schedule)
	v.SetDefault("collector.backoff", def.Collector.Backoff)
	v.SetDefault("collector.metrics_listen", def.Collector.MetricsListen)

	v.SetDefault("probe.driver", def.Probe.Driver)
	v.SetDefault("probe.command", def.Probe.Command)
	v.SetDefault("probe.args", def.Probe.Args)
	v.SetDefault("probe.accept_license", def.Probe.AcceptLicense)
	v.SetDefault("probe.units", def.Probe.Units)
	v.SetDefault("probe.timeout", def.Probe.Timeout)
	v.SetDefault("probe.server_count", def.Probe.ServerCount)

	v.SetDefault("web.listen", def.Web.Listen)
	v.SetDefault("web.rate_limit", def.Web.RateLimit)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.pretty", def.Log.Pretty)
	v.SetDefault("log.file", def.Log.File)
}

// Load reads configuration from defaults, the optional file at path and
// BWPROBE_* environment variables, in increasing order of precedence.
// A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			log.Debug().Str("config_path", path).Msg("reading config file")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, errors.Wrap(err, "cannot read config file")
			}
		} else if os.IsNotExist(err) {
			log.Debug().Str("config_path", path).Msg("config file does not exist, using defaults")
		} else {
			return Config{}, errors.Wrap(err, "cannot stat config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode config")
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal config")
	}
	return b, nil
}
