// Package config loads bridge configuration from environment variables.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge configuration.
type Config struct {
	Logging   LogConfig
	Metrics   MetricsConfig
	Transport TransportConfig
	Script    ScriptConfig
}

// LogConfig holds logging configuration. The level acts as the initial
// filter; the native side may retune it during startup.
type LogConfig struct {
	Level       string `envconfig:"BRIDGE_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"BRIDGE_LOG_DEV" default:"false"`
}

// MetricsConfig holds Prometheus exposure configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"BRIDGE_METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"BRIDGE_METRICS_ADDR" default:""`
}

// TransportConfig selects and parameterizes the native transport.
type TransportConfig struct {
	// Mode is "loopback" (in-process host) or "ws".
	Mode string `envconfig:"BRIDGE_TRANSPORT" default:"loopback"`
	// URL is the websocket endpoint of the native host when Mode is "ws".
	URL string `envconfig:"BRIDGE_WS_URL" default:"ws://127.0.0.1:8701/bridge"`
}

// ScriptConfig bounds the embedded script runtime.
type ScriptConfig struct {
	MaxCallStack  int  `envconfig:"BRIDGE_SCRIPT_STACK" default:"1024"`
	EnableConsole bool `envconfig:"BRIDGE_SCRIPT_CONSOLE" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return &Config{
			Logging:   LogConfig{Level: "info"},
			Metrics:   MetricsConfig{Enabled: true},
			Transport: TransportConfig{Mode: "loopback"},
			Script:    ScriptConfig{MaxCallStack: 1024, EnableConsole: true},
		}
	}
	return cfg
}
