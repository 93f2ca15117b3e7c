// Package config loads sitewatch configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for sitewatch.
type Config struct {
	// Database is the SQLite database path.
	Database string `yaml:"database"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Summarizer struct {
		BaseURL string `yaml:"baseUrl"`
		Model   string `yaml:"model"`
	} `yaml:"summarizer"`

	Crawl struct {
		MaxNewPerRun      int `yaml:"maxNewPerRun"`
		FetchDelaySeconds int `yaml:"fetchDelaySeconds"`
	} `yaml:"crawl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{Database: "sitewatch.db"}
	cfg.Server.Addr = ":8080"
	cfg.Summarizer.BaseURL = "http://localhost:11434"
	cfg.Summarizer.Model = "qwen3:8b"
	cfg.Crawl.MaxNewPerRun = 20
	cfg.Crawl.FetchDelaySeconds = 2
	return cfg
}

// FetchDelay returns the crawl politeness delay as a duration.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.Crawl.FetchDelaySeconds) * time.Second
}

// Load reads the configuration file at path and applies environment
// overrides. An empty path falls back to SITEWATCH_CONFIG and then
// ~/.sitewatch/config.yaml. A missing file is not an error; defaults are
// used. SITEWATCH_DB overrides the database path last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SITEWATCH_CONFIG")
	}
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".sitewatch", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if db := os.Getenv("SITEWATCH_DB"); db != "" {
		cfg.Database = db
	}

	return cfg, nil
}
