package drivepipe

import (
	"log/slog"
	"runtime"
)

// Config configures the batch pipeline.
type Config struct {
	// MaxFileSize is the maximum size of one file or archive member
	// (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxArchiveDepth is how many levels of nested ZIP archives are
	// expanded before the branch is rejected (default: 3).
	MaxArchiveDepth int `json:"max_archive_depth" yaml:"max_archive_depth"`

	// MaxArchiveMembers caps the number of members expanded from one
	// archive, nested members included (default: 100).
	MaxArchiveMembers int `json:"max_archive_members" yaml:"max_archive_members"`

	// MaxExpansionRatio is the zip-bomb guard: an archive whose declared
	// uncompressed size exceeds compressed size × ratio aborts the batch
	// (default: 100).
	MaxExpansionRatio int64 `json:"max_expansion_ratio" yaml:"max_expansion_ratio"`

	// MaxExcerptBytes bounds the raw_excerpt retained per record for audit
	// (default: 2048).
	MaxExcerptBytes int `json:"max_excerpt_bytes" yaml:"max_excerpt_bytes"`

	// Workers bounds parallel per-file extraction (default: GOMAXPROCS).
	Workers int `json:"workers" yaml:"workers"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxArchiveDepth <= 0 {
		c.MaxArchiveDepth = 3
	}
	if c.MaxArchiveMembers <= 0 {
		c.MaxArchiveMembers = 100
	}
	if c.MaxExpansionRatio <= 0 {
		c.MaxExpansionRatio = 100
	}
	if c.MaxExcerptBytes <= 0 {
		c.MaxExcerptBytes = 2048
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
