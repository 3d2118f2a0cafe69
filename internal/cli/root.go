// Package cli implements the chatsync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/db"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
)

var (
	cfgFile     string
	logLevel    string
	logFormat   string
	dbPath      string
	listFlag    string
	jsonOutput  bool
	jsonlOutput bool
	quiet       bool

	appConfig *config.Config
	logFile   io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Incrementally synchronized chat lists",
	Long: `chatsync keeps ordered chat lists in a local store and follows them
live: seed and mutate chats, page through a list, watch it change in a
terminal UI, or inspect the change log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/chatsync/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.StringVar(&dbPath, "db", "", "database path (default is <data_dir>/chatsync.db)")
	flags.StringVarP(&listFlag, "list", "l", "", "list to operate on (default from context or sync.list)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
}

// Execute runs the root command and prints errors the way users expect.
func Execute(version string) error {
	rootCmd.Version = version
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func initConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       os.Stderr,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logCfg.Output = f
	}
	logging.Init(logCfg)

	logger := logging.Component("cli")
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("file", used).Msg("config loaded")
	}

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// IsQuiet reports whether --quiet was given.
func IsQuiet() bool {
	return quiet
}

func contextStore() *config.ContextStore {
	return config.NewContextStore(appConfig.ContextPath())
}

// loadContext returns the saved view context. A missing or unreadable
// context is treated as empty.
func loadContext() *config.Context {
	saved, err := contextStore().Load()
	if err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("ignoring saved context")
		return &config.Context{}
	}
	return saved
}

// resolveList picks the list: --list, then the saved context, then config.
func resolveList() (models.ListID, error) {
	list := strings.TrimSpace(listFlag)
	if list == "" {
		list = loadContext().List
	}
	if list == "" {
		list = appConfig.Sync.List
	}
	if list == "" {
		return "", &PreflightError{
			Message:  "no list selected",
			Hint:     "Pass --list or save one with the context command",
			NextStep: "chatsync context set --list main",
		}
	}
	return models.ListID(list), nil
}

func openDatabase(ctx context.Context) (*db.DB, error) {
	if appConfig.Database.Path == "" {
		if err := appConfig.EnsureDirectories(); err != nil {
			return nil, err
		}
	}
	database, err := db.Open(db.Config{
		Path:          appConfig.DatabasePath(),
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func openFeed(ctx context.Context) (session.Feed, error) {
	switch appConfig.Feed.Backend {
	case config.FeedRedis:
		feed, err := session.NewRedisFeed(ctx, appConfig.Feed.RedisURL, appConfig.Feed.Prefix)
		if err != nil {
			return nil, &PreflightError{
				Message:  fmt.Sprintf("redis feed unavailable: %v", err),
				Hint:     "Check feed.redis_url or switch to the memory backend",
				NextStep: "export " + config.EnvVar("feed.backend") + "=memory",
			}
		}
		return feed, nil
	default:
		return session.NewMemoryFeed(session.DefaultFeedBuffer), nil
	}
}

// openSession opens the database and feed behind a local session. The
// returned close function releases all of them.
func openSession(ctx context.Context) (*session.Local, func(), error) {
	database, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	feed, err := openFeed(ctx)
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}

	local := session.NewLocal(database, feed, session.LocalConfig{
		HistoryLimit: appConfig.Database.HistoryLimit,
		Latency:      appConfig.Sync.FetchLatency,
	})
	closeFn := func() {
		if err := local.Close(); err != nil {
			logger := logging.Component("cli")
			logger.Warn().Err(err).Msg("closing session")
		}
		_ = database.Close()
	}
	return local, closeFn, nil
}

func printError(out io.Writer, err error) {
	var preflight *PreflightError
	if errors.As(err, &preflight) {
		fmt.Fprintf(out, "Error: %s\n", preflight.Message)
		if preflight.Hint != "" {
			fmt.Fprintf(out, "Hint: %s\n", preflight.Hint)
		}
		if preflight.NextStep != "" {
			fmt.Fprintf(out, "Try: %s\n", preflight.NextStep)
		}
		return
	}
	fmt.Fprintf(out, "Error: %v\n", err)
}
