// Package config loads configuration from an optional YAML file and
// environment variables. Environment wins over file values; flags are
// applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	// Server
	ServerURL string `yaml:"server_url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Token     string `yaml:"token"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics (empty disables the listener)
	MetricsAddr string `yaml:"metrics_addr"`

	// Kernel attribute/entry TTL
	AttrTTL time.Duration `yaml:"attr_ttl"`

	// HTTP
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  uint          `yaml:"retry_attempts"`

	// Background health probe (0 disables)
	HealthCheckPeriod time.Duration `yaml:"health_check"`

	// Recursive PROPFIND warm-up at startup
	Prefetch bool `yaml:"prefetch"`
}

// Load reads the optional YAML file at path, then applies environment
// variables with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:          "info",
		LogFormat:         "console",
		AttrTTL:           time.Second,
		RequestTimeout:    30 * time.Second,
		RetryAttempts:     3,
		HealthCheckPeriod: 30 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ServerURL = envOr("DAVMOUNT_URL", cfg.ServerURL)
	cfg.Username = envOr("DAVMOUNT_USERNAME", cfg.Username)
	cfg.Password = envOr("DAVMOUNT_PASSWORD", cfg.Password)
	cfg.Token = envOr("DAVMOUNT_TOKEN", cfg.Token)
	cfg.LogLevel = envOr("DAVMOUNT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("DAVMOUNT_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = envOr("DAVMOUNT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.AttrTTL = envDuration("DAVMOUNT_ATTR_TTL", cfg.AttrTTL)
	cfg.RequestTimeout = envDuration("DAVMOUNT_TIMEOUT", cfg.RequestTimeout)
	cfg.RetryAttempts = envUint("DAVMOUNT_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.HealthCheckPeriod = envDuration("DAVMOUNT_HEALTH_CHECK", cfg.HealthCheckPeriod)
	cfg.Prefetch = envBool("DAVMOUNT_PREFETCH", cfg.Prefetch)

	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required (set DAVMOUNT_URL or server_url)")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envUint(key string, def uint) uint {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint(n)
}
