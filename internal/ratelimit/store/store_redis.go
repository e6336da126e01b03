package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"deepname/internal/ratelimit/models"
	redisplatform "deepname/internal/platform/redis"
)

// slidingWindowScript keeps one sorted-set member per consumed slot, scored
// by its timestamp in milliseconds.
// Returns {allowed, remaining, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count + cost > limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local reset = now + window
  if oldest[2] then reset = tonumber(oldest[2]) + window end
  return {0, 0, reset}
end
for i = 1, cost do
  redis.call('ZADD', KEYS[1], now, ARGV[5] .. ':' .. i)
end
redis.call('PEXPIRE', KEYS[1], window)
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {1, limit - count - cost, tonumber(oldest[2]) + window}
`)

// RedisStore shares windows across replicas.
type RedisStore struct {
	client *redisplatform.Client
	now    func() time.Time
}

func NewRedis(client *redisplatform.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) key(key string) string {
	return s.client.Key("ratelimit", key)
}

func (s *RedisStore) AllowN(ctx context.Context, key string, cost int, limit models.Limit) (models.Result, error) {
	now := s.now().UnixMilli()
	vals, err := slidingWindowScript.Run(ctx, s.client, []string{s.key(key)},
		now, limit.Window.Milliseconds(), limit.Requests, cost, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return models.Result{}, fmt.Errorf("check rate limit: %w", err)
	}
	if len(vals) != 3 {
		return models.Result{}, fmt.Errorf("check rate limit: unexpected reply %v", vals)
	}
	return models.Result{
		Allowed:   vals[0] == 1,
		Limit:     limit.Requests,
		Remaining: int(vals[1]),
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
