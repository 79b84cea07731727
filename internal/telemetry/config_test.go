package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/gh-grep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "gh-grep", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{
		Enabled:         true,
		Endpoint:        "https://otel.example.com:4318",
		Protocol:        "http",
		ServiceName:     "grep-ci",
		SamplingRate:    0.25,
		ShutdownTimeout: config.Duration(time.Second),
	}, "1.4.0")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://otel.example.com:4318", cfg.Endpoint)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "grep-ci", cfg.ServiceName)
	assert.Equal(t, "1.4.0", cfg.ServiceVersion)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.Equal(t, time.Second, cfg.ShutdownTimeout.Duration())
	require.NoError(t, cfg.Validate())

	defaults := FromConfig(config.TelemetryConfig{}, "")
	assert.Equal(t, "localhost:4317", defaults.Endpoint)
	assert.Equal(t, "dev", defaults.ServiceVersion)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "disabled config skips validation", mutate: func(c *Config) {
			*c = Config{}
		}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, errMsg: "endpoint is required"},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, errMsg: "service_name is required"},
		{name: "unknown protocol", mutate: func(c *Config) { c.Protocol = "udp" }, errMsg: "protocol must be"},
		{name: "http/protobuf accepted", mutate: func(c *Config) { c.Protocol = "http/protobuf" }},
		{name: "sampling rate too low", mutate: func(c *Config) { c.SamplingRate = -0.1 }, errMsg: "sampling rate must be between 0 and 1"},
		{name: "sampling rate too high", mutate: func(c *Config) { c.SamplingRate = 1.1 }, errMsg: "sampling rate must be between 0 and 1"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, errMsg: "shutdown timeout must be positive"},
		{name: "TLS to remote collector", mutate: func(c *Config) {
			c.Endpoint = "collector.prod:4317"
			c.Insecure = false
		}},
		{name: "insecure not allowed for remote endpoint", mutate: func(c *Config) {
			c.Endpoint = "collector.prod:4317"
			c.Insecure = true
		}, errMsg: "insecure connections to remote endpoints are not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		isLocal  bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"http://localhost:4318", true},
		{"127.0.0.1:4317", true},
		{"127.0.1.1:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"collector.prod:4317", false},
		{"https://otel.example.com:4318", false},
		{"10.0.0.1:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.isLocal, cfg.isLocalEndpoint())
		})
	}
}
