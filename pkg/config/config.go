// Package config provides configuration loading for the enforcement SDK.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPDPAddress is the default local PDP sidecar address.
	DefaultPDPAddress = "http://localhost:7000"

	// DefaultTenant is the tenant attached to queries that name none.
	DefaultTenant = "default"

	// DefaultTimeout is the default PDP request timeout.
	DefaultTimeout = 5 * time.Second
)

// Config is the SDK configuration surface.
type Config struct {
	// PDPAddress is the base URL of the local PDP sidecar.
	PDPAddress string `yaml:"pdp_address"`

	// CloudAddress is the base URL of the cloud management API resource
	// declarations are mirrored to. Empty disables cloud sync.
	CloudAddress string `yaml:"cloud_address"`

	// Token is the bearer token for both the PDP and the cloud API.
	Token string `yaml:"token"`

	// Timeout bounds each PDP request.
	Timeout time.Duration `yaml:"timeout"`

	// FailOpen allows instead of denies when the PDP is unreachable.
	// Off by default; enabling it trades enforcement for availability.
	FailOpen bool `yaml:"fail_open"`

	// DefaultTenant is attached to decision queries without a tenant.
	DefaultTenant string `yaml:"default_tenant"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
}

// Option defines the interface for configuration options.
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration.
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}
		cfg.path = filepath.Clean(path)
		return nil
	}
}

// Load builds a Config from defaults, an optional YAML file and AEGIS_*
// environment variables, in that order of precedence (later wins).
func Load(opts ...Option) (*Config, error) {
	loader := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loader); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		PDPAddress:    DefaultPDPAddress,
		Timeout:       DefaultTimeout,
		DefaultTenant: DefaultTenant,
	}

	if loader.path != "" {
		data, err := os.ReadFile(loader.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from AEGIS_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("AEGIS_PDP_ADDRESS"); v != "" {
		cfg.PDPAddress = v
	}
	if v := os.Getenv("AEGIS_CLOUD_ADDRESS"); v != "" {
		cfg.CloudAddress = v
	}
	if v := os.Getenv("AEGIS_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("AEGIS_DEFAULT_TENANT"); v != "" {
		cfg.DefaultTenant = v
	}
	if v := os.Getenv("AEGIS_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AEGIS_TIMEOUT %q: %w", v, err)
		}
		cfg.Timeout = timeout
	}
	if v := os.Getenv("AEGIS_FAIL_OPEN"); v != "" {
		failOpen, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AEGIS_FAIL_OPEN %q: %w", v, err)
		}
		cfg.FailOpen = failOpen
	}
	if v := os.Getenv("AEGIS_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AEGIS_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validateBaseURL("pdp_address", c.PDPAddress, true); err != nil {
		return err
	}
	if err := validateBaseURL("cloud_address", c.CloudAddress, false); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func validateBaseURL(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https, got %q", field, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: missing host", field)
	}
	return nil
}
