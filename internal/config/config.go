// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`

	// Cache and event stream (Redis)
	RedisURL      string `env:"REDIS_URL,required,notEmpty"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Schema migrations
	AutoMigrate     bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	MigrationsTable string `env:"MIGRATIONS_TABLE" envDefault:"schema_migrations"`

	// Publish user.created events to the Redis stream
	EventsEnabled bool `env:"EVENTS_ENABLED" envDefault:"true"`

	// Comma-separated list of allowed origins (e.g., "https://example.com,*.example.org")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Per-IP rate limit on user creation
	RateLimitEnabled     bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitCreateRPS   float64 `env:"RATE_LIMIT_CREATE_RPS" envDefault:"5"`
	RateLimitCreateBurst int     `env:"RATE_LIMIT_CREATE_BURST" envDefault:"20"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate checks values that env parsing alone cannot.
func (c *Config) Validate() error {
	var errs []error

	if c.AppPort < 1 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be between 1 and 65535, got %d", c.AppPort))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns))
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.DBMinConns))
	}
	if c.RedisPoolSize < 1 {
		errs = append(errs, fmt.Errorf("REDIS_POOL_SIZE must be at least 1, got %d", c.RedisPoolSize))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive, got %d", c.MaxRequestBodySize))
	}
	if c.RateLimitEnabled {
		if c.RateLimitCreateRPS <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_CREATE_RPS must be positive, got %v", c.RateLimitCreateRPS))
		}
		if c.RateLimitCreateBurst < 1 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_CREATE_BURST must be at least 1, got %d", c.RateLimitCreateBurst))
		}
	}
	if strings.TrimSpace(c.MigrationsTable) == "" {
		errs = append(errs, errors.New("MIGRATIONS_TABLE must not be empty"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing or values are invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
