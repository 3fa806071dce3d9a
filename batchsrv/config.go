package batchsrv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platterworks/drivebatch/drivepipe"
)

// Config holds the full batch service configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	DBPath      string `yaml:"db_path"`
	MaxFileMB   int    `yaml:"max_file_mb"`
	MaxBatchMB  int    `yaml:"max_batch_mb"`
	MaxFiles    int    `yaml:"max_files"`
	MaxAttempts int    `yaml:"max_attempts"`

	// RatePerMinute caps requests per client IP across the API.
	RatePerMinute int `yaml:"rate_per_minute"`

	Pipeline drivepipe.Config `yaml:"pipeline"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8082",
		DBPath:        "drivebatch.db",
		MaxFileMB:     100,
		MaxBatchMB:    200,
		MaxFiles:      50,
		MaxAttempts:   3,
		RatePerMinute: 240,
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
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
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.MaxBatchMB < c.MaxFileMB {
		return fmt.Errorf("max_batch_mb must be >= max_file_mb")
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be > 0")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be > 0")
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("rate_per_minute must be > 0")
	}
	return nil
}

// MaxFileBytes returns max per-file upload size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// MaxBatchBytes returns max total upload size per batch in bytes.
func (c *Config) MaxBatchBytes() int64 { return int64(c.MaxBatchMB) * 1024 * 1024 }
