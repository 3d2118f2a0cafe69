// Package db provides SQLite persistence for the chat lists served by the
// local session.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tOgg1/chatsync/internal/logging"
)

// Config contains database settings.
type Config struct {
	// Path is the SQLite file. ":memory:" opens a private in-memory database.
	Path string

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	// Default: 5000
	BusyTimeoutMs int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Path: "chatsync.db", BusyTimeoutMs: 5000}
}

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
	path string
}

// Open opens (and creates) the database at cfg.Path.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.BusyTimeoutMs <= 0 {
		cfg.BusyTimeoutMs = DefaultConfig().BusyTimeoutMs
	}

	memory := cfg.Path == ":memory:"
	if !memory {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeoutMs),
		"_pragma=foreign_keys(ON)",
	}
	if !memory {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	dsn := cfg.Path + "?" + strings.Join(pragmas, "&")

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger := logging.Component("db")
	logger.Debug().Str("path", cfg.Path).Msg("database opened")
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(Config{Path: ":memory:"})
}

// Path returns the database path.
func (db *DB) Path() string {
	return db.path
}

// Migrate creates the schema if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			last_activity TEXT,
			unread_count INTEGER NOT NULL DEFAULT 0,
			mention_count INTEGER NOT NULL DEFAULT 0,
			has_draft INTEGER NOT NULL DEFAULT 0,
			muted INTEGER NOT NULL DEFAULT 0,
			has_scheduled INTEGER NOT NULL DEFAULT 0,
			tag TEXT NOT NULL DEFAULT '',
			archived INTEGER NOT NULL DEFAULT 0,
			special INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_positions (
			list_id TEXT NOT NULL,
			chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			pinned INTEGER NOT NULL DEFAULT 0,
			ord INTEGER NOT NULL,
			tie_break INTEGER NOT NULL,
			PRIMARY KEY (list_id, chat_id)
		)`,
		`CREATE INDEX IF NOT EXISTS chat_positions_order_idx
			ON chat_positions(list_id, pinned DESC, ord DESC, tie_break ASC)`,
		`CREATE INDEX IF NOT EXISTS chat_positions_chat_idx ON chat_positions(chat_id)`,
		`CREATE TABLE IF NOT EXISTS changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			recorded_at TEXT NOT NULL,
			list_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			position_json TEXT,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS changes_list_idx ON changes(list_id, seq)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Transaction runs fn in a transaction, committing when it returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
