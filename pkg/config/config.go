// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Identity      IdentityConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for both credential modes.
//
// StandardURL connects with the application role, which must be a member of
// botdeck_app (granted explicit table privileges by the migrations; no
// access to the bot catalog). ElevatedURL connects with a role carrying
// BYPASSRLS and is optional: when empty the elevated gateway stays
// unconfigured and elevated operations fail with a configuration error
// instead of degrading to the standard pool.
type DatabaseConfig struct {
	StandardURL string
	ElevatedURL string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// RedisConfig holds Redis configuration for rate limiting
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// IdentityConfig holds identity provider configuration
type IdentityConfig struct {
	IssuerURL string
	ClientID  string

	// Admin API for account-shell management (invitation cancellation)
	AdminBaseURL string
	AdminToken   string
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("BOTDECK_HOST", "0.0.0.0"),
			Port:            getEnv("BOTDECK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("BOTDECK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("BOTDECK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("BOTDECK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("BOTDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			StandardURL: getEnv("BOTDECK_POSTGRES_URL", ""),
			ElevatedURL: getEnv("BOTDECK_POSTGRES_ELEVATED_URL", ""),
			MaxConns:    getEnvInt("BOTDECK_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("BOTDECK_POSTGRES_MIN_CONNS", 5),
			MaxLifetime: getEnvDuration("BOTDECK_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("BOTDECK_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
			PingTimeout: getEnvDuration("BOTDECK_POSTGRES_PING_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("BOTDECK_REDIS_ADDR", ""),
			Password: getEnv("BOTDECK_REDIS_PASSWORD", ""),
			DB:       getEnvInt("BOTDECK_REDIS_DB", 0),
			Enabled:  getEnvBool("BOTDECK_REDIS_ENABLED", false),
		},
		Identity: IdentityConfig{
			IssuerURL:    getEnv("BOTDECK_OIDC_ISSUER", ""),
			ClientID:     getEnv("BOTDECK_OIDC_CLIENT_ID", ""),
			AdminBaseURL: getEnv("BOTDECK_IDP_ADMIN_URL", ""),
			AdminToken:   getEnv("BOTDECK_IDP_ADMIN_TOKEN", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("BOTDECK_LOG_LEVEL", "info"),
			MetricsEnabled: getEnvBool("BOTDECK_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Database.StandardURL == "" {
		return fmt.Errorf("BOTDECK_POSTGRES_URL is required")
	}
	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("BOTDECK_OIDC_ISSUER is required")
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("BOTDECK_OIDC_CLIENT_ID is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("BOTDECK_REDIS_ADDR is required when redis is enabled")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("BOTDECK_POSTGRES_MAX_CONNS must be >= BOTDECK_POSTGRES_MIN_CONNS")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
