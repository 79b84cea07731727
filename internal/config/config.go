// Package config provides configuration loading for gh-grep.
//
// Values come from an optional YAML file, then GH_GREP_* environment
// variables, and finally from command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultParallel is the number of repositories processed at once.
const DefaultParallel = 5

// Config holds the complete gh-grep configuration.
type Config struct {
	GitHub    GitHubConfig    `koanf:"github"`
	Grep      GrepConfig      `koanf:"grep"`
	Logging   LoggingConfig   `koanf:"logging"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Cache     CacheConfig     `koanf:"cache"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// GitHubConfig selects the API host and credentials.
type GitHubConfig struct {
	// Host is the logged-in host name (github.com or a GHE host).
	// Empty means "ask the auth provider".
	Host string `koanf:"host"`

	// Token overrides the auth provider when set.
	Token Secret `koanf:"token"`

	// APIURL overrides the REST base URL derived from Host.
	APIURL string `koanf:"api_url"`
}

// GrepConfig holds defaults for the grep operation itself.
type GrepConfig struct {
	Parallel int `koanf:"parallel"`
}

// LoggingConfig controls diagnostic logging on stderr.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RateLimitConfig throttles outgoing API requests. Zero disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// CacheConfig sizes the large-file fallback cache.
type CacheConfig struct {
	TreeEntries int `koanf:"tree_entries"`
}

// MetricsConfig controls Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	ServiceName     string   `koanf:"service_name"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - grep.parallel is below 1
//   - the rate limit is negative
//   - the logging format is not console or json
//   - the cache size is below 1
//   - telemetry is enabled without an endpoint
func (c *Config) Validate() error {
	if c.Grep.Parallel < 1 {
		return fmt.Errorf("invalid grep parallel: %d (must be >= 1)", c.Grep.Parallel)
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("ratelimit requests_per_second cannot be negative")
	}
	if c.RateLimit.Burst < 0 {
		return errors.New("ratelimit burst cannot be negative")
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging format must be 'console' or 'json', got %q", c.Logging.Format)
	}

	if c.Cache.TreeEntries < 1 {
		return fmt.Errorf("invalid cache tree_entries: %d (must be >= 1)", c.Cache.TreeEntries)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Grep.Parallel == 0 {
		cfg.Grep.Parallel = DefaultParallel
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}

	if cfg.Cache.TreeEntries == 0 {
		cfg.Cache.TreeEntries = 128
	}

	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "gh-grep"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "gh-grep"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}
