// Package config loads client settings from a YAML file with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by FromEnv.
const (
	EnvURL      = "NOCODB_URL"
	EnvAPIToken = "NOCODB_API_TOKEN"
)

var ErrNoURL = errors.New("deployment url not set")

// Duration wraps time.Duration so YAML can carry values like "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds everything needed to construct a client.
type Config struct {
	// URL of the NocoDB deployment, e.g. "https://app.nocodb.com".
	URL string `yaml:"url"`
	// APIToken is the xc-token value sent with every request.
	APIToken string `yaml:"api_token"`
	// PageSize used for unbounded listings. Zero means the default of 1000.
	PageSize int `yaml:"page_size"`
	// StrictPages makes a short page before the server's last-page marker a
	// hard protocol error instead of a tolerated anomaly.
	StrictPages bool `yaml:"strict_pages"`
	// RequestsPerSecond throttles the transport. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Timeout is the per-request timeout. Zero means the transport default.
	Timeout Duration `yaml:"timeout"`
	// LogPath makes the client log to the file at this path, appending.
	// Empty disables logging.
	LogPath string `yaml:"log_path"`
}

// Load reads a YAML config file and applies environment overrides on top.
func Load(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg = FromEnv(cfg)
	return cfg, cfg.Validate()
}

// FromEnv overlays environment variables on cfg and returns the result.
func FromEnv(cfg Config) Config {
	cfg.URL = getEnvOrDefault(EnvURL, cfg.URL)
	cfg.APIToken = getEnvOrDefault(EnvAPIToken, cfg.APIToken)
	return cfg
}

// Validate reports whether the config is usable.
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrNoURL
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative, got %d", c.PageSize)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %v", c.RequestsPerSecond)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
