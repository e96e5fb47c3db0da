package config

import (
	"time"
)

const (
	defaultListen      = "127.0.0.1:8095"
	defaultResolveTTL  = 15 * time.Minute
	defaultPurgeEvery  = 10 * time.Minute
	defaultRetainFor   = 24 * time.Hour
	defaultServiceName = "connresult"
)

// Config represents the main configuration structure
type Config struct {
	Listen  string `json:"listen" mapstructure:"listen" validate:"required,hostname_port"`
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`

	// Resolution lifecycle settings
	Resolution ResolutionConfig `json:"resolution" mapstructure:"resolution"`

	// Tracing settings (OTLP over HTTP)
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Services the daemon classifies attempts for
	Services []*ServiceConfig `json:"services" mapstructure:"services" validate:"dive"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log_dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max_size" validate:"min=0"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups" validate:"min=0"` // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max_age" validate:"min=0"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json_format"`
}

// ResolutionConfig controls how long issued resolutions stay valid and how the
// interactive host behaves.
type ResolutionConfig struct {
	// TTL is how long an issued resolution may be dispatched.
	TTL time.Duration `json:"ttl" mapstructure:"ttl" validate:"min=1s"`
	// PurgeInterval is how often stale records are removed.
	PurgeInterval time.Duration `json:"purge_interval" mapstructure:"purge_interval" validate:"min=1s"`
	// RetainFor keeps finished records around for inspection.
	RetainFor time.Duration `json:"retain_for" mapstructure:"retain_for" validate:"min=0"`
	// OpenBrowser launches targets with the OS opener; otherwise they are printed.
	OpenBrowser bool `json:"open_browser" mapstructure:"open_browser"`
	// Notify shows a desktop notification when a flow is launched.
	Notify bool `json:"notify" mapstructure:"notify"`
}

// TracingConfig mirrors observability.TracingConfig for file/env loading.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName  string  `json:"service_name" mapstructure:"service_name"`
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRate   float64 `json:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// ServiceConfig describes one background service and where each kind of
// remediation flow lives for it.
type ServiceConfig struct {
	Name    string `json:"name" mapstructure:"name" validate:"required,max=64"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`

	// MinVersion is the lowest service version clients accept (semver).
	MinVersion string `json:"min_version,omitempty" mapstructure:"min_version"`

	// Accounts restricts which account names may connect. Empty allows any.
	Accounts []string `json:"accounts,omitempty" mapstructure:"accounts"`

	// Remediation targets, opened by the interactive host.
	InstallURL string `json:"install_url,omitempty" mapstructure:"install_url" validate:"omitempty,url"`
	UpdateURL  string `json:"update_url,omitempty" mapstructure:"update_url" validate:"omitempty,url"`
	EnableURL  string `json:"enable_url,omitempty" mapstructure:"enable_url" validate:"omitempty,url"`
	LoginURL   string `json:"login_url,omitempty" mapstructure:"login_url" validate:"omitempty,url"`
	ResolveURL string `json:"resolve_url,omitempty" mapstructure:"resolve_url" validate:"omitempty,url"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
		Resolution: ResolutionConfig{
			TTL:           defaultResolveTTL,
			PurgeInterval: defaultPurgeEvery,
			RetainFor:     defaultRetainFor,
			OpenBrowser:   true,
			Notify:        false,
		},
		Tracing: TracingConfig{
			ServiceName: defaultServiceName,
			SampleRate:  1.0,
		},
	}
}

// Service returns the configured service with the given name, or nil.
func (c *Config) Service(name string) *ServiceConfig {
	for _, s := range c.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// AllowsAccount reports whether account may connect to the service.
func (s *ServiceConfig) AllowsAccount(account string) bool {
	if len(s.Accounts) == 0 {
		return true
	}
	for _, a := range s.Accounts {
		if a == account {
			return true
		}
	}
	return false
}
