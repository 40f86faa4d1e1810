package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/permission"
	"codeberg.org/mutker/boostctl/internal/pid"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix = "BOOSTCTL"
	DefaultLogLevel  = "info"
	DefaultListen    = "127.0.0.1:8377"
	DefaultMode      = "balance"

	configName = "boostctl"
	configType = "toml"
)

type Config struct {
	Interval        time.Duration
	NetworkInterval time.Duration
	ThermalInterval time.Duration
	Mode            mode.Mode
	Seed            int64
	LogLevel        string
	Listen          string
	PIDFile         string

	History             bool
	HistoryDB           string
	HistoryBatchSize    int
	HistoryBatchTimeout time.Duration

	OverlayGranted       bool
	WriteSettingsGranted bool
}

// flag name -> viper key
var flagKeys = map[string]string{
	"interval":               "interval",
	"network-interval":       "network_interval",
	"thermal-interval":       "thermal_interval",
	"mode":                   "mode",
	"seed":                   "seed",
	"log-level":              "log_level",
	"listen":                 "listen",
	"pid-file":               "pid_file",
	"history":                "history",
	"history-db":             "history_db",
	"history-batch-size":     "history_batch_size",
	"history-batch-timeout":  "history_batch_timeout",
	"overlay-granted":        "overlay_granted",
	"write-settings-granted": "write_settings_granted",
}

func setDefaults(v *viper.Viper) {
	hist := history.DefaultConfig()

	v.SetDefault("interval", telemetry.DefaultInterval.Milliseconds())
	v.SetDefault("network_interval", telemetry.DefaultNetworkInterval.Milliseconds())
	v.SetDefault("thermal_interval", telemetry.DefaultThermalInterval.Milliseconds())
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("seed", 0)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("pid_file", pid.DefaultPath())
	v.SetDefault("history", hist.Enabled)
	v.SetDefault("history_db", hist.DBPath)
	v.SetDefault("history_batch_size", hist.BatchSize)
	v.SetDefault("history_batch_timeout", hist.BatchTimeout.Milliseconds())
	v.SetDefault("overlay_granted", false)
	v.SetDefault("write_settings_granted", false)
}

func newFlagSet(v *viper.Viper) *pflag.FlagSet {
	fs := pflag.NewFlagSet("boostctl", pflag.ContinueOnError)

	fs.Int64("interval", v.GetInt64("interval"), "Primary telemetry tick interval in milliseconds")
	fs.Int64("network-interval", v.GetInt64("network_interval"), "Network telemetry tick interval in milliseconds")
	fs.Int64("thermal-interval", v.GetInt64("thermal_interval"), "Thermal telemetry tick interval in milliseconds")
	fs.String("mode", v.GetString("mode"), "Initial performance mode (saving, balance, boost)")
	fs.Int64("seed", v.GetInt64("seed"), "Random seed, 0 seeds from the clock")
	fs.String("log-level", v.GetString("log_level"), "Log level (debug, info, warning, error)")
	fs.String("listen", v.GetString("listen"), "HTTP listen address, empty disables the API")
	fs.String("pid-file", v.GetString("pid_file"), "PID file guarding against a second instance")
	fs.Bool("history", v.GetBool("history"), "Record telemetry history to SQLite")
	fs.String("history-db", v.GetString("history_db"), "Path to the history database")
	fs.Int("history-batch-size", v.GetInt("history_batch_size"), "Samples buffered before a history flush")
	fs.Int64("history-batch-timeout", v.GetInt64("history_batch_timeout"), "Periodic history flush in milliseconds, 0 disables")
	fs.Bool("overlay-granted", v.GetBool("overlay_granted"), "Host has granted the overlay capability")
	fs.Bool("write-settings-granted", v.GetBool("write_settings_granted"), "Host has granted the write-settings capability")

	return fs
}

// Load reads configuration from file, environment and args, in increasing
// precedence, and validates the result.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet(v)
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	cfg := &Config{
		Interval:             millis(v.GetInt64("interval")),
		NetworkInterval:      millis(v.GetInt64("network_interval")),
		ThermalInterval:      millis(v.GetInt64("thermal_interval")),
		Seed:                 v.GetInt64("seed"),
		LogLevel:             v.GetString("log_level"),
		Listen:               v.GetString("listen"),
		PIDFile:              v.GetString("pid_file"),
		History:              v.GetBool("history"),
		HistoryDB:            v.GetString("history_db"),
		HistoryBatchSize:     v.GetInt("history_batch_size"),
		HistoryBatchTimeout:  millis(v.GetInt64("history_batch_timeout")),
		OverlayGranted:       v.GetBool("overlay_granted"),
		WriteSettingsGranted: v.GetBool("write_settings_granted"),
	}

	m, err := mode.ParseMode(v.GetString("mode"))
	if err != nil {
		return nil, err
	}
	cfg.Mode = m

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, o options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath("/etc/boostctl")
	v.AddConfigPath("$HOME/.config/boostctl")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	intervals := map[string]time.Duration{
		"interval":         c.Interval,
		"network_interval": c.NetworkInterval,
		"thermal_interval": c.ThermalInterval,
	}
	for key, d := range intervals {
		if d <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, struct {
				Key   string
				Value time.Duration
			}{
				Key:   key,
				Value: d,
			})
		}
	}

	if c.HistoryBatchTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value time.Duration
		}{
			Key:   "history_batch_timeout",
			Value: c.HistoryBatchTimeout,
		})
	}

	if c.PIDFile == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "pid_file must not be empty")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if !c.Mode.IsValid() {
		return errFactory.WithData(errors.ErrInvalidMode, int(c.Mode))
	}

	if err := c.HistoryConfig().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Interval:        c.Interval,
		NetworkInterval: c.NetworkInterval,
		ThermalInterval: c.ThermalInterval,
		Seed:            c.Seed,
	}
}

func (c *Config) HistoryConfig() history.Config {
	return history.Config{
		Enabled:      c.History,
		DBPath:       c.HistoryDB,
		BatchSize:    c.HistoryBatchSize,
		BatchTimeout: c.HistoryBatchTimeout,
	}
}

func (c *Config) Capabilities() permission.Capabilities {
	return permission.Capabilities{
		Overlay:       c.OverlayGranted,
		WriteSettings: c.WriteSettingsGranted,
	}
}
