package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

type Config struct {
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level

	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	DataDir       string `env:"DATA_DIR" envDefault:"./data"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"redis"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/compass.db"`

	WorkerID       string        `env:"WORKER_ID"`
	SessionLockTTL time.Duration `env:"SESSION_LOCK_TTL" envDefault:"30s"`

	// Achievement threshold for axes without a badge configuration
	DefaultCompassThreshold float64 `env:"DEFAULT_COMPASS_THRESHOLD" envDefault:"3.0"`
}

// Load reads a .env file if present, then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the worker cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageRedis:
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.SessionLockTTL <= 0 {
		errs = append(errs, errors.New("SESSION_LOCK_TTL must be positive"))
	}
	if math.IsNaN(c.DefaultCompassThreshold) || c.DefaultCompassThreshold <= 0 {
		errs = append(errs, errors.New("DEFAULT_COMPASS_THRESHOLD must be positive"))
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
