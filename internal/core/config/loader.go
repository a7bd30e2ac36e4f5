package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultPort               = 8080
	DefaultStartDelay         = 150 * time.Second
	DefaultPollInterval       = 5 * time.Second
	DefaultMaxNotFoundRetries = 3
	DefaultNodeTimeout        = 30 * time.Second
	DefaultTransportRetries   = 2
	DefaultSessionRetention   = 7 * 24 * time.Hour
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Node.Timeout == 0 {
		cfg.Node.Timeout = DefaultNodeTimeout
	}
	if cfg.Node.TransportRetries == 0 {
		cfg.Node.TransportRetries = DefaultTransportRetries
	}
	if cfg.Finality.StartDelay == 0 {
		cfg.Finality.StartDelay = DefaultStartDelay
	}
	if cfg.Finality.PollInterval == 0 {
		cfg.Finality.PollInterval = DefaultPollInterval
	}
	if cfg.Finality.MaxNotFoundRetries == 0 {
		cfg.Finality.MaxNotFoundRetries = DefaultMaxNotFoundRetries
	}
	if cfg.Finality.SessionRetention == 0 {
		cfg.Finality.SessionRetention = DefaultSessionRetention
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects values the finality wait cannot run with.
func (c *AppConfig) Validate() error {
	if c.Finality.StartDelay < 0 {
		return fmt.Errorf("finality.start_delay must not be negative: %s", c.Finality.StartDelay)
	}
	if c.Finality.PollInterval < 0 {
		return fmt.Errorf("finality.poll_interval must not be negative: %s", c.Finality.PollInterval)
	}
	if c.Finality.MaxNotFoundRetries < 0 {
		return fmt.Errorf("finality.max_not_found_retries must not be negative: %d", c.Finality.MaxNotFoundRetries)
	}
	if c.Node.TransportRetries < 0 {
		return fmt.Errorf("node.transport_retries must not be negative: %d", c.Node.TransportRetries)
	}
	return nil
}
