// Package sqlite implements storage.Storage on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/compass-engine/pkg/storage"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_sessions (
	id TEXT PRIMARY KEY,
	scenario_id TEXT NOT NULL,
	status TEXT NOT NULL,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS player_scenario_scores (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	scenario_id TEXT NOT NULL,
	game_session_id TEXT NOT NULL,
	axis_scores TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (profile_id, scenario_id)
);

CREATE TABLE IF NOT EXISTS badge_configurations (
	id TEXT PRIMARY KEY,
	axis TEXT NOT NULL,
	axis_key TEXT NOT NULL,
	threshold REAL NOT NULL,
	name TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	image_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS badge_configurations_axis_key ON badge_configurations (axis_key);

CREATE TABLE IF NOT EXISTS user_badges (
	id TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	badge_configuration_id TEXT NOT NULL,
	badge_name TEXT NOT NULL,
	badge_message TEXT NOT NULL DEFAULT '',
	axis TEXT NOT NULL,
	trigger_value REAL NOT NULL,
	threshold REAL NOT NULL,
	image_id TEXT NOT NULL DEFAULT '',
	earned_at INTEGER NOT NULL,
	UNIQUE (profile_id, badge_configuration_id)
);
`

// op is a staged write applied inside the SaveChanges transaction
type op func(ctx context.Context, tx *sql.Tx) error

// Store persists sessions, scores and badges in SQLite. Writes are staged
// and applied in one transaction by SaveChanges.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	pending []op
}

var _ storage.Storage = (*Store)(nil)

// Open opens (creating if needed) a SQLite database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("Opened SQLite storage", "path", path)
	return &Store{sqlDB: sqlDB, logger: logger}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) stage(o op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, o)
}

// DiscardChanges drops staged writes without opening a transaction
func (s *Store) DiscardChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// SaveChanges applies every staged write in one transaction. A UNIQUE
// violation rolls the whole batch back and returns storage.ErrAlreadyExists.
func (s *Store) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, apply := range pending {
		if err := apply(ctx, tx); err != nil {
			if isUniqueViolation(err) {
				s.logger.Warn("Unique record already exists", "error", err)
				return fmt.Errorf("%w: %v", storage.ErrAlreadyExists, err)
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrAlreadyExists, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("Committed staged writes", "count", len(pending))
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
