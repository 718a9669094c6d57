package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the startup ping so a dead Redis fails fast
const connectTimeout = 5 * time.Second

// Client owns the Redis connection shared by the request queue, session
// locks and event broadcasts.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewClient connects to Redis. redisURL may be a redis:// URL or a bare
// host:port, the same forms REDIS_URL accepts for storage.
func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	opts, err := parseAddr(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis for queue service", "addr", opts.Addr, "db", opts.DB)
	return NewClientWithRedis(rdb, logger), nil
}

func parseAddr(s string) (*redis.Options, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty address")
	}
	if strings.Contains(s, "://") {
		return redis.ParseURL(s)
	}
	return &redis.Options{Addr: s}, nil
}

// NewClientWithRedis shares an existing connection
func NewClientWithRedis(rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{
		rdb:    rdb,
		logger: logger,
	}
}

// Health is a point-in-time view of the queue connection
type Health struct {
	LatencyMS int64 `json:"latency_ms"`
	Depth     int   `json:"depth"`
}

// Health pings Redis and reports how many requests are waiting
func (c *Client) Health(ctx context.Context) (Health, error) {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return Health{}, fmt.Errorf("queue ping failed: %w", err)
	}
	h := Health{LatencyMS: time.Since(start).Milliseconds()}

	depth, err := c.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return h, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	h.Depth = int(depth)
	return h, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetRedisClient returns the underlying connection for locks and pub/sub
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}
