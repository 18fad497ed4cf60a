package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - config:{config_key} - system_config values, FLAG_CACHE_TTL

const flagKeyPrefix = "config:"

// FlagCache keeps system_config values close to the agent.
type FlagCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewFlagCache(client *goredis.Client, ttl time.Duration) *FlagCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &FlagCache{client: client, ttl: ttl}
}

// Get returns the cached value; ok is false on a miss.
func (c *FlagCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, flagKeyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *FlagCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, flagKeyPrefix+key, value, c.ttl).Err()
}
