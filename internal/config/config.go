// Package config handles chatsync configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/chatsync/internal/models"
)

// Config is the root configuration structure for chatsync.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Sync controls the list slices.
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Bulk controls whole-list enumeration.
	Bulk BulkConfig `yaml:"bulk" mapstructure:"bulk"`

	// Feed selects how change notifications are distributed.
	Feed FeedConfig `yaml:"feed" mapstructure:"feed"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where chatsync stores its data (default: ~/.local/share/chatsync).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/chatsync).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`

	// HistoryLimit caps the change log. Zero disables it.
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SyncConfig contains slice controller settings.
type SyncConfig struct {
	// List is the list opened by default.
	List string `yaml:"list" mapstructure:"list"`

	// BatchSize is the number of entries the first page asks for.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	// LoadMoreSize is the number of entries each further page asks for.
	LoadMoreSize int `yaml:"load_more_size" mapstructure:"load_more_size"`

	// FetchLatency delays local page fetches, to make loading visible.
	FetchLatency time.Duration `yaml:"fetch_latency" mapstructure:"fetch_latency"`
}

// BulkConfig contains enumerator settings.
type BulkConfig struct {
	// PageSize is the number of entries fetched per step.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// Progress reports a non-final completion after every page.
	Progress bool `yaml:"progress" mapstructure:"progress"`
}

// Feed backends.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

// FeedConfig contains change feed settings.
type FeedConfig struct {
	// Backend is memory or redis.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// RedisURL is used by the redis backend.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`

	// Prefix namespaces the redis channels.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast, ocean, sunset).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ArchiveRow shows archived chats behind one synthetic row.
	ArchiveRow bool `yaml:"archive_row" mapstructure:"archive_row"`

	// CollapseArchive folds archived chats into the archive row.
	CollapseArchive bool `yaml:"collapse_archive" mapstructure:"collapse_archive"`

	// ShowTimestamps shows last activity in the UI.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "chatsync"),
			ConfigDir: filepath.Join(homeDir, ".config", "chatsync"),
		},
		Database: DatabaseConfig{
			Path:          "", // Will be set to DataDir/chatsync.db
			BusyTimeoutMs: 5000,
			HistoryLimit:  10000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Sync: SyncConfig{
			List:         string(models.ListMain),
			BatchSize:    50,
			LoadMoreSize: 50,
		},
		Bulk: BulkConfig{
			PageSize: 100,
		},
		Feed: FeedConfig{
			Backend: FeedMemory,
			Prefix:  "chatsync:list:",
		},
		TUI: TUIConfig{
			Theme:          "default",
			ArchiveRow:     true,
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}
	if c.Database.HistoryLimit < 0 {
		return fmt.Errorf("database.history_limit must not be negative")
	}

	if c.Sync.List == "" {
		return fmt.Errorf("sync.list is required")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if c.Sync.LoadMoreSize < 1 {
		return fmt.Errorf("sync.load_more_size must be at least 1")
	}
	if c.Sync.FetchLatency < 0 {
		return fmt.Errorf("sync.fetch_latency must not be negative")
	}

	if c.Bulk.PageSize < 1 {
		return fmt.Errorf("bulk.page_size must be at least 1")
	}

	switch c.Feed.Backend {
	case FeedMemory:
	case FeedRedis:
		if c.Feed.RedisURL == "" {
			return fmt.Errorf("feed.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("feed.backend must be one of memory, redis")
	}

	switch c.TUI.Theme {
	case "default", "high-contrast", "ocean", "sunset":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast, ocean, sunset")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "chatsync.db")
}

// ContextPath returns the path of the saved view context.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
