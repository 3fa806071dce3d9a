package batchsrv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.MaxFileBytes() != 100*1024*1024 {
		t.Errorf("MaxFileBytes = %d", cfg.MaxFileBytes())
	}
	if cfg.MaxBatchBytes() != 200*1024*1024 {
		t.Errorf("MaxBatchBytes = %d", cfg.MaxBatchBytes())
	}
}

// WHAT: file values override defaults, untouched keys keep them.
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9090"
max_files: 10
pipeline:
  max_archive_depth: 2
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.MaxFiles != 10 {
		t.Errorf("max_files = %d", cfg.MaxFiles)
	}
	if cfg.MaxFileMB != 100 {
		t.Errorf("default max_file_mb not kept: %d", cfg.MaxFileMB)
	}
	if cfg.Pipeline.MaxArchiveDepth != 2 {
		t.Errorf("pipeline depth = %d", cfg.Pipeline.MaxArchiveDepth)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db_path", func(c *Config) { c.DBPath = "" }},
		{"zero max_file_mb", func(c *Config) { c.MaxFileMB = 0 }},
		{"batch smaller than file", func(c *Config) { c.MaxBatchMB = c.MaxFileMB - 1 }},
		{"zero max_files", func(c *Config) { c.MaxFiles = 0 }},
		{"zero max_attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero rate_per_minute", func(c *Config) { c.RatePerMinute = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
