package config

import (
	"fmt"
)

// ArchiveConfig defines where persisted plans are archived.
type ArchiveConfig struct {
	// Backend selects the archive type: "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the jsonl archive.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *ArchiveConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend == "jsonl" {
		c.Path = "plans.jsonl"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c ArchiveConfig) Validate() error {
	switch c.Backend {
	case "jsonl":
		if c.Path == "" {
			return fmt.Errorf("archive.path is required")
		}
	case "sqlite", "none":
	default:
		return fmt.Errorf("unknown archive backend %s", c.Backend)
	}
	return nil
}
