package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.zapcrm/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `toml:"listen_addr"`

	// SLAThresholdMinutes is the response-time budget for conversations.
	SLAThresholdMinutes int `toml:"sla_threshold_minutes"`

	// Reconnect tuning. Zero values fall back to the built-in policy
	// (3 attempts, 1s base doubling to a 10s ceiling).
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`

	// SettleDelayMS is the pause between tearing a session down and
	// bringing it back up, so the prior transport instance can release
	// its resources.
	SettleDelayMS int `toml:"settle_delay_ms"`
}

// Defaults fills unset fields with their built-in values.
func (c *Config) Defaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8990"
	}
	if c.SLAThresholdMinutes == 0 {
		c.SLAThresholdMinutes = 120
	}
	if c.SettleDelayMS == 0 {
		c.SettleDelayMS = 2000
	}
}

// SLAThreshold returns the configured threshold as a duration.
func (c *Config) SLAThreshold() time.Duration {
	return time.Duration(c.SLAThresholdMinutes) * time.Minute
}

// SettleDelay returns the configured settle pause as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrInit reads the config if present. On first run it writes a file with
// the built-in defaults so there is something to edit.
func LoadOrInit(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = &Config{}
		cfg.Defaults()
		return cfg, Save(path, cfg)
	}
	if err != nil {
		return nil, err
	}
	cfg.Defaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
