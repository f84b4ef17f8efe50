// Package config provides runtime configuration loaded from environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds component-runtime configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"component-runtime"`

	// Remote servicing switch and its properties file (empty = built-in
	// defaults; the file may override address and port).
	RemoteEnabled    bool   `envconfig:"REMOTE_ENABLED" default:"true"`
	RouterConfigFile string `envconfig:"ROUTER_CONFIG_FILE"`

	// Timeouts
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the runtime.
func (c *Config) ValidateForServe() error {
	if c.RemoteEnabled && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required when remote servicing is enabled", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// SlogLevel maps the configured log level string onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
