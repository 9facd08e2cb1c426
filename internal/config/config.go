package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all gateway configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Client-facing WebSocket endpoint
	Addr string `env:"WSGATE_ADDR" envDefault:":3002"`

	// Control plane
	NATSUrl       string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	ControlPrefix string `env:"WSGATE_CONTROL_PREFIX" envDefault:"wsgate"`

	// Token verification
	PublicKeyPath string `env:"WSGATE_PUBLIC_KEY,required"`

	// Handshake
	HandshakeTimeout time.Duration `env:"WSGATE_HANDSHAKE_TIMEOUT" envDefault:"2s"`

	// Admission control
	MaxConnections int     `env:"WSGATE_MAX_CONNECTIONS" envDefault:"10000"`
	AcceptRate     float64 `env:"WSGATE_ACCEPT_RATE" envDefault:"100"`
	AcceptBurst    int     `env:"WSGATE_ACCEPT_BURST" envDefault:"200"`

	// Shutdown
	ShutdownGrace time.Duration `env:"WSGATE_SHUTDOWN_GRACE" envDefault:"30s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and the environment.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production the environment is
	// set directly and the file is absent.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("WSGATE_ADDR is required")
	}
	if c.NATSUrl == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if c.PublicKeyPath == "" {
		return fmt.Errorf("WSGATE_PUBLIC_KEY is required")
	}

	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("WSGATE_HANDSHAKE_TIMEOUT must be > 0, got %s", c.HandshakeTimeout)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("WSGATE_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.AcceptRate <= 0 {
		return fmt.Errorf("WSGATE_ACCEPT_RATE must be > 0, got %.1f", c.AcceptRate)
	}
	if c.AcceptBurst < 1 {
		return fmt.Errorf("WSGATE_ACCEPT_BURST must be > 0, got %d", c.AcceptBurst)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("WSGATE_SHUTDOWN_GRACE must be > 0, got %s", c.ShutdownGrace)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the effective configuration with the structured logger.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("nats_url", c.NATSUrl).
		Str("control_prefix", c.ControlPrefix).
		Str("public_key", c.PublicKeyPath).
		Dur("handshake_timeout", c.HandshakeTimeout).
		Int("max_connections", c.MaxConnections).
		Float64("accept_rate", c.AcceptRate).
		Int("accept_burst", c.AcceptBurst).
		Dur("shutdown_grace", c.ShutdownGrace).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Gateway configuration loaded")
}
