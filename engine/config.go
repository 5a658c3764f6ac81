package engine

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all checkra configuration.
type Config struct {
	// DBPath is the SQLite file for the conversation log.
	DBPath string `yaml:"db_path"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// RatingEnabled wires the rate control on each fix.
	RatingEnabled bool `yaml:"rating_enabled"`

	Pageload PageloadConfig `yaml:"pageload"`
}

// PageloadConfig controls live-page acquisition.
type PageloadConfig struct {
	// Browser enables headless-browser escalation for script-rendered
	// pages.
	Browser bool `yaml:"browser"`

	// Stealth applies anti-detection patches to browser pages.
	Stealth bool `yaml:"stealth"`

	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string `yaml:"remote_url"`

	// NavTimeout bounds navigation plus load wait.
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "checkra.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8750"
	}
	if c.Pageload.NavTimeout <= 0 {
		c.Pageload.NavTimeout = 30 * time.Second
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
