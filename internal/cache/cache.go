// Package cache keeps rendered responses of public read endpoints in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how stale a cached response can get when an
// invalidation is missed.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "navsite:cache:"

// Cache stores response bodies by key
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Redis is a Cache backed by a Redis server
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis cache. A ttl of zero selects DefaultTTL.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL, connects and pings
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return rdb, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return b, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

// MemoryURL selects an in-process Redis for development
const MemoryURL = "memory"

// Open returns the cache selected by url: Noop when url is empty, an
// in-process miniredis for MemoryURL, otherwise a Redis server. The returned
// close function releases whatever was started.
func Open(ctx context.Context, url string, ttl time.Duration) (Cache, func() error, error) {
	switch url {
	case "":
		return Noop{}, func() error { return nil }, nil
	case MemoryURL:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("cache: start miniredis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewRedis(rdb, ttl), func() error {
			err := rdb.Close()
			mr.Close()
			return err
		}, nil
	default:
		rdb, err := Dial(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(rdb, ttl), rdb.Close, nil
	}
}

// Noop never stores anything. It is used when no Redis is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error          { return nil }
func (Noop) Invalidate(context.Context, ...string) error        { return nil }
