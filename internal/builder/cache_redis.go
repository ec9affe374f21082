package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calade/reportdeck/model"
)

// RedisResultCache is a redis-backed ResultCache. Entries are stored as JSON
// under a per-cache key prefix so that replicas serving the same session share
// warm results; eviction is delegated to the entry TTL.
type RedisResultCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisResultCache creates a redis-backed result cache. Every key is
// stored under prefix; ttl zero means entries never expire.
func NewRedisResultCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, prefix: prefix, ttl: ttl}
}

// Get looks up a stored result.
func (c *RedisResultCache) Get(ctx context.Context, key string) (*CachedResult, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry CachedResult
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached result %q: %w", key, err)
	}
	return &entry, true, nil
}

// Put stores a result under key with the configured TTL.
func (c *RedisResultCache) Put(ctx context.Context, key string, rows []model.ReportRow, count int) error {
	entry := CachedResult{
		Rows:     rows,
		Count:    count,
		StoredAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cached result: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Clear drops every entry under this cache's prefix.
func (c *RedisResultCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %q: %w", c.prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Len returns the number of entries under this cache's prefix.
func (c *RedisResultCache) Len(ctx context.Context) (int, error) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %q: %w", c.prefix, err)
	}
	return n, nil
}

// HealthCheck pings the redis backend.
func (c *RedisResultCache) HealthCheck(ctx context.Context) error {
	pinger, ok := c.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	})
	if !ok {
		return nil
	}
	return pinger.Ping(ctx).Err()
}
