// Package reuse caches validated websites keyed by business name and city
// so chains and duplicate listings skip rediscovery.
package reuse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menulytics/sitefinder/internal/textutil"
)

const websiteKeyPrefix = "sitefinder:website:"

// Key builds the cache key from the folded core-token name plus the folded
// city. Two branches of one chain in different cities stay distinct.
func Key(name, city string) string {
	return websiteKeyPrefix + strings.Join(textutil.CoreTokens(name), "") + ":" + textutil.Compact(city)
}

// RedisCache is the Redis-backed ReuseCache for shared deployments.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a RedisCache. A zero ttl keeps entries forever.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached website for (name, city), if any.
func (c *RedisCache) Get(ctx context.Context, name, city string) (string, bool, error) {
	val, err := c.client.Get(ctx, Key(name, city)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reuse cache get: %w", err)
	}
	return val, true, nil
}

// Put records a validated website for (name, city).
func (c *RedisCache) Put(ctx context.Context, name, city, websiteURL string) error {
	if err := c.client.Set(ctx, Key(name, city), websiteURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("reuse cache put: %w", err)
	}
	return nil
}
