// Package config loads the YAML configuration and the API credentials.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full cinefetch configuration.
type Config struct {
	DataDir      string    `yaml:"data_dir"`
	LogsDir      string    `yaml:"logs_dir"`
	SecretsFile  string    `yaml:"secrets_file"`
	HistoryDB    string    `yaml:"history_db"`    // empty disables the run history
	StatusListen string    `yaml:"status_listen"` // empty disables the status listener
	API          APIConfig `yaml:"api"`
	Entities     []string  `yaml:"entities"` // default run set when -entities is not given
}

// APIConfig tunes the client and the fetch scheduler.
type APIConfig struct {
	Host             string        `yaml:"host"`
	RPS              int           `yaml:"rps"`
	Workers          int           `yaml:"workers"`
	InflightMultiple int           `yaml:"inflight_multiple"`
	MaxRetries       int           `yaml:"max_retries"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "data/out",
		LogsDir:     "logs/fetch",
		SecretsFile: ".env",
		API: APIConfig{
			RPS:              50,
			Workers:          64,
			InflightMultiple: 4,
			MaxRetries:       6,
			BackoffBase:      200 * time.Millisecond,
			BackoffCap:       60 * time.Second,
			Timeout:          45 * time.Second,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LogsDir == "" {
		return fmt.Errorf("logs_dir is required")
	}
	if c.API.RPS <= 0 {
		return fmt.Errorf("api.rps must be > 0")
	}
	if c.API.Workers <= 0 {
		return fmt.Errorf("api.workers must be > 0")
	}
	if c.API.InflightMultiple <= 0 {
		return fmt.Errorf("api.inflight_multiple must be > 0")
	}
	return nil
}

// bearerKeys are the accepted .env keys for the API token, in lookup
// order.
var bearerKeys = []string{"TMDB_bearer", "TMDB_BEARER"}

// LoadBearer reads the API bearer token from a .env-style file
// (KEY=value lines, # comments). A missing or empty token is an error:
// every call would fail with 401, so the run must not start.
func LoadBearer(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("secrets file: %w", err)
	}
	defer f.Close()

	vals := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vals[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("secrets file: %w", err)
	}

	for _, k := range bearerKeys {
		if v := vals[k]; v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("secrets file %s: no %s entry", path, strings.Join(bearerKeys, " or "))
}
