package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisplatform "deepname/internal/platform/redis"
	"deepname/pkg/platform/sentinel"
)

const (
	stateIssued = "issued"
	stateUsed   = "used"
)

// consumeScript flips an issued nonce to used while keeping its TTL.
// Returns 1 on success, 0 when already used, -1 when missing.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return -1 end
if v == ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
return 1
`)

// RedisStore keeps nonces as keys expiring with their TTL.
type RedisStore struct {
	client *redisplatform.Client
}

func NewRedis(client *redisplatform.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(nonce string) string {
	return s.client.Key("siwe_nonce", nonce)
}

func (s *RedisStore) Issue(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.key(nonce), stateIssued, ttl).Result()
	if err != nil {
		return fmt.Errorf("issue nonce: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, nonce string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(nonce)}, stateIssued, stateUsed).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("consume nonce: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return sentinel.ErrAlreadyUsed
	default:
		return sentinel.ErrNotFound
	}
}
