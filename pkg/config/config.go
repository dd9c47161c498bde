// Package config loads SOC backend configuration from an optional YAML
// file and environment variables (spec §6.5 A1), the same layered
// approach the wider codebase uses for its services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence for incidents and tickets.
type DatabaseConfig struct {
	DSN             string `json:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool   `json:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Output string `json:"output" env:"LOG_OUTPUT"`
}

// EventBusConfig selects and configures the event bus backend (spec
// §4.4, §6.4).
type EventBusConfig struct {
	RedisURL              string `json:"redis_url" env:"REDIS_URL"`
	InMemory              bool   `json:"in_memory" env:"DEMO_NO_REDIS"`
	FallbackOnUnavailable bool   `json:"fallback_on_unavailable" env:"EVENT_BUS_FALLBACK"`
}

// AuthConfig controls the shared secret gating write endpoints.
type AuthConfig struct {
	Secret string `json:"secret" env:"AUTH_SECRET"`
}

// DemoConfig carries the DEMO_MODE flag. It is loaded and validated
// with the rest of Config; no component of this service reads it.
type DemoConfig struct {
	DemoMode bool `json:"demo_mode" env:"DEMO_MODE"`
}

// RateLimitConfig bounds the per-client request budget on the HTTP
// surface (spec §6.1's console has no per-user quota of its own).
type RateLimitConfig struct {
	RequestsPerSecond int `json:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int `json:"burst" env:"RATE_LIMIT_BURST"`
}

// CORSConfig lists allowed browser origins for the push endpoint and
// the read/write HTTP surface.
type CORSConfig struct {
	Origins []string `json:"origins" env:"CORS_ORIGINS"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	EventBus  EventBusConfig  `json:"event_bus"`
	Auth      AuthConfig      `json:"auth"`
	Demo      DemoConfig      `json:"demo"`
	CORS      CORSConfig      `json:"cors"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			AutoMigrate:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		EventBus: EventBusConfig{
			RedisURL:              "redis://localhost:6379/0",
			FallbackOnUnavailable: true,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// Load loads configuration from file (if present) and environment
// variables, in that order, env taking precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting every var.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalizeCORS()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalizeCORS splits a single comma-joined CORS_ORIGINS env value
// into individual origins; envdecode's default []string decoding
// already splits on commas, but a file-sourced single-entry list needs
// the same treatment for consistency.
func (c *Config) normalizeCORS() {
	if len(c.CORS.Origins) == 1 && strings.Contains(c.CORS.Origins[0], ",") {
		parts := strings.Split(c.CORS.Origins[0], ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		c.CORS.Origins = out
	}
}

// Validate enforces the startup invariants spec §6.4 implies: a
// service that writes incident/ticket state needs a DSN, and the
// shared write-auth secret must not be empty.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("config: AUTH_SECRET is required")
	}
	return nil
}
