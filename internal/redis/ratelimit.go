package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{client_id}:uploads - per-window upload starts of a client
// - ratelimit:{ip}:connections   - per-window websocket connects of an address

type RateLimitConfig struct {
	UploadLimit      int           // Max upload starts per window
	UploadWindow     time.Duration // Upload rate limit window
	ConnectionLimit  int           // Max websocket connects per window
	ConnectionWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UploadLimit:      30,
		UploadWindow:     60 * time.Second,
		ConnectionLimit:  20,
		ConnectionWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

// NewRateLimiter fills non-positive limits and windows from
// DefaultRateLimitConfig.
func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.UploadLimit <= 0 {
		config.UploadLimit = def.UploadLimit
	}
	if config.UploadWindow <= 0 {
		config.UploadWindow = def.UploadWindow
	}
	if config.ConnectionLimit <= 0 {
		config.ConnectionLimit = def.ConnectionLimit
	}
	if config.ConnectionWindow <= 0 {
		config.ConnectionWindow = def.ConnectionWindow
	}
	return &RateLimiter{
		client: client,
		config: config,
	}
}

var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

func uploadKey(clientID string) string {
	return fmt.Sprintf("ratelimit:%s:uploads", clientID)
}

func connectionKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:connections", ip)
}

// AllowUpload consumes one upload start for the client if any are left.
func (r *RateLimiter) AllowUpload(ctx context.Context, clientID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, uploadKey(clientID), r.config.UploadLimit, r.config.UploadWindow)
}

// AllowConnection consumes one websocket connect for the address.
func (r *RateLimiter) AllowConnection(ctx context.Context, ip string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, connectionKey(ip), r.config.ConnectionLimit, r.config.ConnectionWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	resetIn, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(resetIn) * time.Second,
		Limit:     limit,
	}, nil
}

// ResetUploads clears the client's counter (admin operation).
func (r *RateLimiter) ResetUploads(ctx context.Context, clientID string) error {
	return r.client.Del(ctx, uploadKey(clientID)).Err()
}
