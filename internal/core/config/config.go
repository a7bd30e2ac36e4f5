package config

import (
	"time"

	redisclient "github.com/vietddude/finality/internal/infra/redis"
	"github.com/vietddude/finality/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Node     NodeConfig         `yaml:"node"`
	Finality FinalityConfig     `yaml:"finality"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
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

// NodeConfig points at the chain API used for status queries.
type NodeConfig struct {
	URL              string        `yaml:"url"`
	Timeout          time.Duration `yaml:"timeout"`
	TransportRetries int           `yaml:"transport_retries"` // connection errors only
}

// FinalityConfig controls the finality wait.
type FinalityConfig struct {
	StartDelay         time.Duration `yaml:"start_delay"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxNotFoundRetries int           `yaml:"max_not_found_retries"`
	SessionRetention   time.Duration `yaml:"session_retention"` // negative disables pruning
}
