package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultDataDir = ".connresult"
	ConfigFileName = "connresult"
	EnvPrefix      = "CONNRESULT"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"listen":      "listen",
	"data-dir":    "data_dir",
	"log-level":   "logging.level",
	"log-to-file": "logging.enable_file",
	"log-dir":     "logging.log_dir",
}

// Load loads configuration from defaults, an optional file, environment
// variables and command-line flags, in increasing order of precedence.
// When configPath is empty the data directory and the working directory are
// searched for connresult.{json,yaml,yml}.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper configures a viper instance with environment handling and defaults
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("data_dir", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.enable_file", d.Logging.EnableFile)
	v.SetDefault("logging.enable_console", d.Logging.EnableConsole)
	v.SetDefault("logging.filename", d.Logging.Filename)
	v.SetDefault("logging.log_dir", "")
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.json_format", d.Logging.JSONFormat)
	v.SetDefault("resolution.ttl", d.Resolution.TTL)
	v.SetDefault("resolution.purge_interval", d.Resolution.PurgeInterval)
	v.SetDefault("resolution.retain_for", d.Resolution.RetainFor)
	v.SetDefault("resolution.open_browser", d.Resolution.OpenBrowser)
	v.SetDefault("resolution.notify", d.Resolution.Notify)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	return v
}

// readConfigFile loads an explicit file, or searches the usual locations.
// A missing file in the search locations is not an error.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		// Empty file (including /dev/null) is treated as no configuration
		if info.Size() == 0 {
			return nil
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName(ConfigFileName)
	v.AddConfigPath(".")
	if dir := v.GetString("data_dir"); dir != "" {
		v.AddConfigPath(dir)
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, DefaultDataDir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to load config file: %w", err)
	}
	return nil
}

// finalize fills the data directory, creates it and validates.
func finalize(cfg *Config) error {
	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if cfg.Logging == nil {
		cfg.Logging = DefaultConfig().Logging
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
