package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	require.Equal(t, "main", cfg.Sync.List)
	require.Equal(t, 50, cfg.Sync.BatchSize)
	require.Equal(t, 100, cfg.Bulk.PageSize)
	require.Equal(t, FeedMemory, cfg.Feed.Backend)
	require.Equal(t, filepath.Join(cfg.Global.DataDir, "chatsync.db"), cfg.DatabasePath())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ~/chats.db
  history_limit: 0
sync:
  list: archive
  batch_size: 20
  fetch_latency: 250ms
bulk:
  page_size: 7
  progress: true
tui:
  theme: ocean
  collapse_archive: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "chats.db"), cfg.DatabasePath())
	require.Zero(t, cfg.Database.HistoryLimit)
	require.Equal(t, "archive", cfg.Sync.List)
	require.Equal(t, 20, cfg.Sync.BatchSize)
	require.Equal(t, 50, cfg.Sync.LoadMoreSize)
	require.Equal(t, 250*time.Millisecond, cfg.Sync.FetchLatency)
	require.Equal(t, 7, cfg.Bulk.PageSize)
	require.True(t, cfg.Bulk.Progress)
	require.Equal(t, "ocean", cfg.TUI.Theme)
	require.True(t, cfg.TUI.CollapseArchive)
	require.True(t, cfg.TUI.ArchiveRow)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
sync:
  batch_size: 20
logging:
  level: warn
`)
	t.Setenv("CHATSYNC_SYNC_BATCH_SIZE", "33")
	t.Setenv("CHATSYNC_FEED_BACKEND", "redis")
	t.Setenv("CHATSYNC_FEED_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 33, cfg.Sync.BatchSize)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, FeedRedis, cfg.Feed.Backend)
	require.Equal(t, "redis://localhost:6379/0", cfg.Feed.RedisURL)
}

func TestSetOverridesEverything(t *testing.T) {
	t.Setenv("CHATSYNC_LOGGING_LEVEL", "warn")

	loader := NewLoader()
	loader.SetConfigFile(writeConfig(t, "logging:\n  level: error\n"))
	loader.Set("logging.level", "debug")

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.NotEmpty(t, loader.ConfigFileUsed())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty list", func(c *Config) { c.Sync.List = "" }},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"zero load more", func(c *Config) { c.Sync.LoadMoreSize = 0 }},
		{"negative latency", func(c *Config) { c.Sync.FetchLatency = -time.Second }},
		{"zero bulk page", func(c *Config) { c.Bulk.PageSize = 0 }},
		{"negative history", func(c *Config) { c.Database.HistoryLimit = -1 }},
		{"unknown feed", func(c *Config) { c.Feed.Backend = "kafka" }},
		{"redis without url", func(c *Config) { c.Feed.Backend = FeedRedis }},
		{"unknown theme", func(c *Config) { c.TUI.Theme = "neon" }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "CHATSYNC_SYNC_BATCH_SIZE", EnvVar("sync.batch_size"))
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Global.DataDir = filepath.Join(root, "data")
	cfg.Global.ConfigDir = filepath.Join(root, "config")

	require.NoError(t, cfg.EnsureDirectories())
	require.DirExists(t, cfg.Global.DataDir)
	require.DirExists(t, cfg.Global.ConfigDir)
	require.Equal(t, filepath.Join(root, "config", "context.yaml"), cfg.ContextPath())
}
