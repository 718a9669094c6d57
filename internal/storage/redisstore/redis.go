package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/compass-engine/internal/catalog"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// stagedWrite is a pending SET. Unique writes use SETNX so a second record
// for the same key is rejected by Redis rather than overwritten.
type stagedWrite struct {
	key         string
	data        []byte
	unique      bool
	indexKey    string
	indexMember string
}

// RedisStorage implements storage.Storage with Redis for sessions, profiles,
// scores and badges, and the filesystem for the badge catalogue.
//
// Writes are staged until SaveChanges. One RedisStorage is meant to serve one
// worker, which handles a single request at a time.
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string

	mu      sync.Mutex
	pending []stagedWrite

	catalogMu sync.RWMutex
	catalog   []*scoring.BadgeConfiguration
	loaded    bool
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := ParseOptions(redisURL)
	if err != nil {
		return nil, err
	}
	return NewWithClient(redis.NewClient(opts), dataDir, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, dataDir string, logger *slog.Logger) *RedisStorage {
	if dataDir == "" {
		dataDir = "./data"
	}
	return &RedisStorage{
		client:  client,
		logger:  logger,
		dataDir: dataDir,
	}
}

// ParseOptions accepts either a redis:// URL or a host:port address
func ParseOptions(redisURL string) (*redis.Options, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: redisURL}, nil
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// Client exposes the underlying client so the queue and lock can share it
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisStorage) stage(w stagedWrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, w)
}

func (r *RedisStorage) stageJSON(key string, v any, unique bool, indexKey, indexMember string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	r.stage(stagedWrite{
		key:         key,
		data:        data,
		unique:      unique,
		indexKey:    indexKey,
		indexMember: indexMember,
	})
	return nil
}

// DiscardChanges drops staged writes without touching Redis
func (r *RedisStorage) DiscardChanges() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		r.logger.Debug("Discarded staged writes", "count", len(r.pending))
	}
	r.pending = nil
}

// SaveChanges commits staged writes. Unique records are claimed with SETNX
// first; if any key already exists the claimed keys are released and
// storage.ErrAlreadyExists is returned. The remaining writes and index
// updates go out in one MULTI/EXEC.
func (r *RedisStorage) SaveChanges(ctx context.Context) error {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	var claimed []string
	release := func() {
		if len(claimed) == 0 {
			return
		}
		if err := r.client.Del(ctx, claimed...).Err(); err != nil {
			r.logger.Error("Failed to release claimed keys", "keys", claimed, "error", err)
		}
	}

	for _, w := range pending {
		if !w.unique {
			continue
		}
		ok, err := r.client.SetNX(ctx, w.key, w.data, 0).Result()
		if err != nil {
			release()
			return fmt.Errorf("failed to write %s: %w", w.key, err)
		}
		if !ok {
			release()
			r.logger.Warn("Unique record already exists", "key", w.key)
			return fmt.Errorf("%s: %w", w.key, storage.ErrAlreadyExists)
		}
		claimed = append(claimed, w.key)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range pending {
			if !w.unique {
				pipe.Set(ctx, w.key, w.data, 0)
			}
			if w.indexKey != "" {
				pipe.SAdd(ctx, w.indexKey, w.indexMember)
			}
		}
		return nil
	})
	if err != nil {
		release()
		r.logger.Error("Failed to commit staged writes", "count", len(pending), "error", err)
		return fmt.Errorf("failed to commit changes: %w", err)
	}

	r.logger.Debug("Committed staged writes", "count", len(pending))
	return nil
}

// getJSON loads key into v. It reports false when the key does not exist.
func (r *RedisStorage) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		r.logger.Error("Failed to load record", "key", key, "error", err)
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.logger.Error("Failed to unmarshal record", "key", key, "error", err)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Badge catalogue operations (filesystem-backed)

func (r *RedisStorage) badgeCatalogue() ([]*scoring.BadgeConfiguration, error) {
	r.catalogMu.RLock()
	if r.loaded {
		defer r.catalogMu.RUnlock()
		return r.catalog, nil
	}
	r.catalogMu.RUnlock()

	return r.ReloadBadgeConfigurations()
}

// ReloadBadgeConfigurations re-reads the badge files from disk
func (r *RedisStorage) ReloadBadgeConfigurations() ([]*scoring.BadgeConfiguration, error) {
	configs, err := catalog.LoadDir(r.dataDir)
	if err != nil {
		r.logger.Error("Failed to load badge configurations", "data_dir", r.dataDir, "error", err)
		return nil, err
	}

	r.catalogMu.Lock()
	defer r.catalogMu.Unlock()
	r.catalog = configs
	r.loaded = true
	r.logger.Info("Loaded badge configurations", "count", len(configs))
	return configs, nil
}
