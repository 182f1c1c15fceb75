package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Refresh tokens are deliberately long-lived and not configurable; shortening
// them silently would invalidate clients holding the documented 7-day window.
const RefreshTokenTTL = 7 * 24 * time.Hour

const devTokenSecret = "dev-secret-change-in-production"

// Config is the immutable service configuration, parsed once at startup and
// passed to components at construction time. It is never mutated afterwards.
type Config struct {
	ServiceName string `env:"AUTHKEEP_SERVICE_NAME" envDefault:"authkeep-api"`
	Environment string `env:"AUTHKEEP_ENV"          envDefault:"development"`
	Addr        string `env:"AUTHKEEP_ADDR"         envDefault:":8080"`

	DatabaseDSN    string `env:"AUTHKEEP_PG_DSN"`
	SessionBackend string `env:"AUTHKEEP_SESSION_BACKEND" envDefault:"postgres"`
	RedisAddr      string `env:"AUTHKEEP_REDIS_ADDR"      envDefault:"localhost:6379"`

	// TokenSecret signs every issued token. The default only exists so the
	// service can boot in development; Validate rejects it elsewhere.
	TokenSecret    string `env:"AUTHKEEP_TOKEN_SECRET" envDefault:"dev-secret-change-in-production"`
	TokenAlgorithm string `env:"AUTHKEEP_TOKEN_ALG"    envDefault:"HS256"`

	AccessTokenTTLMinutes int `env:"AUTHKEEP_ACCESS_TTL_MINUTES" envDefault:"30"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces startup invariants.
func (c Config) Validate() error {
	if c.TokenSecret == "" {
		return errors.New("token secret is required")
	}
	if c.Environment != "development" && c.TokenSecret == devTokenSecret {
		return errors.New("token secret must be overridden outside development")
	}
	if c.TokenAlgorithm != "HS256" {
		return fmt.Errorf("unsupported token algorithm %q", c.TokenAlgorithm)
	}
	if c.AccessTokenTTLMinutes <= 0 {
		return errors.New("access token ttl must be positive")
	}
	switch c.SessionBackend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	return nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
