package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration file shape.
type Config struct {
	Server struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Socket struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
	} `yaml:"socket"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Poll struct {
		BaseSeconds int `yaml:"base_seconds"`
		MaxSeconds  int `yaml:"max_seconds"`
	} `yaml:"poll"`

	DebounceMillis int    `yaml:"debounce_ms"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogLevel       string `yaml:"log_level"`
}

// loadConfig reads and validates the YAML config file.
func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("config %s: server.url is required", path)
	}
	return &cfg, nil
}

// PollBase returns the configured poll base interval.
func (c *Config) PollBase() time.Duration {
	if c.Poll.BaseSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Poll.BaseSeconds) * time.Second
}

// PollMax returns the configured poll backoff cap.
func (c *Config) PollMax() time.Duration {
	if c.Poll.MaxSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Poll.MaxSeconds) * time.Second
}

// Debounce returns the configured save debounce window.
func (c *Config) Debounce() time.Duration {
	if c.DebounceMillis <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(c.DebounceMillis) * time.Millisecond
}
