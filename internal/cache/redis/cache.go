// Package redis keeps recently resolved addresses in Redis so repeat lookups
// skip the database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/postal-resolver/internal/resolver"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// Config controls the Redis connection and entry lifetime.
type Config struct {
	URL string
	TTL time.Duration
}

// Cache implements resolver.ResultCache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ resolver.ResultCache = (*Cache)(nil)

// New connects to Redis. It returns nil when no URL is configured.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached result for key. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (resolver.Result, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return resolver.Result{}, false, nil
	}
	if err != nil {
		return resolver.Result{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var res resolver.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return resolver.Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return res, true, nil
}

// Set stores res under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, res resolver.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
