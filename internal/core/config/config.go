package config

import (
	"time"

	"github.com/ddvo/chorelist/internal/infra/cache"
	"github.com/ddvo/chorelist/internal/infra/storage/postgres"
	"github.com/ddvo/chorelist/internal/txretry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  postgres.Config `yaml:"database"`
	Cache     cache.Config    `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retry     RetryConfig     `yaml:"retry"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig bounds the transaction retry loop.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	JitterFactor float64       `yaml:"jitter_factor"`
	MaxElapsed   time.Duration `yaml:"max_elapsed"` // 0 = unlimited
}

// Budget converts the config into an executor budget.
func (c RetryConfig) Budget() txretry.Budget {
	return txretry.Budget{
		MaxAttempts: c.MaxAttempts,
		MaxElapsed:  c.MaxElapsed,
		Backoff: txretry.ExponentialBackoff{
			Base:       c.BaseDelay,
			Max:        c.MaxDelay,
			Multiplier: 2,
			Jitter:     c.JitterFactor,
		},
	}
}

// RetentionConfig controls pruning of bought items.
type RetentionConfig struct {
	Period time.Duration `yaml:"period"` // 0 = keep forever
}
