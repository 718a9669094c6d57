// Package storage opens the configured storage backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/compass-engine/internal/catalog"
	"github.com/jwebster45206/compass-engine/internal/config"
	"github.com/jwebster45206/compass-engine/internal/storage/redisstore"
	"github.com/jwebster45206/compass-engine/internal/storage/sqlite"
	pkgstorage "github.com/jwebster45206/compass-engine/pkg/storage"
)

// Open returns the backend selected by cfg.StorageDriver with the badge
// catalogue loaded from cfg.DataDir.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pkgstorage.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageRedis:
		store, err := redisstore.NewRedisStorage(cfg.RedisURL, cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		if err := store.WaitForConnection(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		// Fail fast on a broken catalogue
		if _, err := store.ReloadBadgeConfigurations(); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		configs, err := catalog.LoadDir(cfg.DataDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := store.SyncBadgeConfigurations(ctx, configs); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
