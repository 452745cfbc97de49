// Package cache keeps rendered shopping lists in Redis so hot readers skip
// the database. It is strictly best effort: every error degrades to a cache
// miss, and writers invalidate entries only after their transaction has
// committed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ddvo/chorelist/internal/core/domain"
)

// Config holds Redis connection configuration. An empty URL disables the
// cache entirely.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// ListCache is a read-through cache of per-user lists.
type ListCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a new cache client.
func New(cfg Config) (*ListCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListCache{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *ListCache) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (c *ListCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func listKey(username string) string {
	return fmt.Sprintf("chorelist:items:%s", username)
}

// GetList returns the cached list for a user, or a miss.
func (c *ListCache) GetList(ctx context.Context, username string) ([]*domain.Item, bool) {
	data, err := c.rdb.Get(ctx, listKey(username)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("cache read failed", "username", username, "error", err)
		}
		return nil, false
	}

	var items []*domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Debug("cache entry corrupt, dropping", "username", username, "error", err)
		c.Invalidate(ctx, username)
		return nil, false
	}
	return items, true
}

// SetList stores a user's list.
func (c *ListCache) SetList(ctx context.Context, username string, items []*domain.Item) {
	data, err := json.Marshal(items)
	if err != nil {
		slog.Debug("cache encode failed", "username", username, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, listKey(username), data, c.ttl).Err(); err != nil {
		slog.Debug("cache write failed", "username", username, "error", err)
	}
}

// Invalidate drops a user's cached list.
func (c *ListCache) Invalidate(ctx context.Context, username string) {
	if err := c.rdb.Del(ctx, listKey(username)).Err(); err != nil {
		slog.Debug("cache invalidation failed", "username", username, "error", err)
	}
}
