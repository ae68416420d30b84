package payloadcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "payload:"

// RedisCache stores serialized payload entries in Redis. Intended for
// multi-process deployments where SDK reads should not hit the document
// store on every request.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithRedisPrefix overrides the key prefix. The default is "payload:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRedisTTL sets an expiry on cached entries. Zero means no expiry;
// entries are replaced on every propagation cycle anyway.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRedisCache creates a Redis-backed payload cache.
func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(sdkKey string) string {
	return c.prefix + sdkKey
}

func (c *RedisCache) Get(ctx context.Context, sdkKey string) (Entry, error) {
	raw, err := c.client.Get(ctx, c.key(sdkKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, sdkKey)
		}
		return Entry{}, fmt.Errorf("loading payload for %s: %w", sdkKey, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding payload for %s: %w", sdkKey, err)
	}
	return entry, nil
}

func (c *RedisCache) Set(ctx context.Context, entry Entry) error {
	if entry.SDKKey == "" {
		return fmt.Errorf("%w: sdk key is required", ErrInvalidEntry)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", entry.SDKKey, err)
	}
	if err := c.client.Set(ctx, c.key(entry.SDKKey), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing payload for %s: %w", entry.SDKKey, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sdkKey string) error {
	if err := c.client.Del(ctx, c.key(sdkKey)).Err(); err != nil {
		return fmt.Errorf("deleting payload for %s: %w", sdkKey, err)
	}
	return nil
}
