package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	redisplatform "deepname/internal/platform/redis"
	"deepname/internal/verification/models"
	"deepname/pkg/platform/sentinel"
)

// putIfNewer writes payload and stamp unless the stored stamp is newer.
// KEYS[1] record hash; ARGV[1] payload; ARGV[2] stamp in unix microseconds.
var putIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'stored_at')
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'stored_at', ARGV[2])
return 1
`)

// RedisStore keeps each kind in its own hash so several gateway replicas
// share one view of the latest records.
type RedisStore struct {
	client *redisplatform.Client
}

func NewRedis(client *redisplatform.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(kind models.Kind) string {
	return s.client.Key("verification", kind.String())
}

func (s *RedisStore) Put(ctx context.Context, entry models.Entry) error {
	stamp := strconv.FormatInt(entry.StoredAt.UnixMicro(), 10)
	written, err := putIfNewer.Run(ctx, s.client, []string{s.key(entry.Kind)}, string(entry.Payload), stamp).Int()
	if err != nil {
		return fmt.Errorf("put verification record: %w", err)
	}
	if written == 0 {
		return sentinel.ErrSuperseded
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind models.Kind) (models.Entry, error) {
	fields, err := s.client.HMGet(ctx, s.key(kind), "payload", "stored_at").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Entry{}, sentinel.ErrNotFound
		}
		return models.Entry{}, fmt.Errorf("get verification record: %w", err)
	}
	payload, ok := fields[0].(string)
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	stampRaw, _ := fields[1].(string)
	stamp, err := strconv.ParseInt(stampRaw, 10, 64)
	if err != nil {
		return models.Entry{}, fmt.Errorf("decode verification record stamp: %w", err)
	}
	return models.Entry{
		Kind:     kind,
		Payload:  []byte(payload),
		StoredAt: time.UnixMicro(stamp).UTC(),
	}, nil
}

func (s *RedisStore) Clear(ctx context.Context, kind models.Kind) error {
	if err := s.client.Del(ctx, s.key(kind)).Err(); err != nil {
		return fmt.Errorf("clear verification record: %w", err)
	}
	return nil
}
