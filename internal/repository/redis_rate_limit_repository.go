package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "chat_support:rate_limit:"

// acquireScript stores ARGV[1] (unix ms) with a TTL of ARGV[2] ms unless a younger value exists.
var acquireScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
if last and (now - tonumber(last)) < cooldown then
  return {0, tonumber(last)}
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', cooldown)
return {1, now}
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisRateLimitRepository keeps rate limit slots in Redis, expiring them with the cool-down.
type RedisRateLimitRepository struct {
	client *redis.Client
}

// NewRedisRateLimitRepository constructs the repository.
func NewRedisRateLimitRepository(client *redis.Client) *RedisRateLimitRepository {
	return &RedisRateLimitRepository{client: client}
}

// Acquire atomically checks and records the slot for key via a Lua script.
func (r *RedisRateLimitRepository) Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Time, error) {
	if r.client == nil {
		return false, time.Time{}, errors.New("redis rate limiter: client not configured")
	}
	values, err := acquireScript.Run(ctx, r.client, []string{rateLimitKeyPrefix + key}, now.UnixMilli(), cooldown.Milliseconds()).Int64Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("redis acquire rate limit slot: %w", err)
	}
	if len(values) != 2 {
		return false, time.Time{}, fmt.Errorf("redis acquire rate limit slot: unexpected reply %v", values)
	}
	return values[0] == 1, time.UnixMilli(values[1]).UTC(), nil
}

// Release deletes the slot for key if it still carries recordedAt.
func (r *RedisRateLimitRepository) Release(ctx context.Context, key string, recordedAt time.Time) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{rateLimitKeyPrefix + key}, recordedAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis release rate limit slot: %w", err)
	}
	return nil
}
