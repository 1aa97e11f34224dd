package idempotency

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedisStore returns a Store shared across replicas. Put uses SET NX so the
// first writer wins.
func NewRedisStore(rdb goredis.UniversalClient, prefix string) Store {
	if prefix == "" {
		prefix = "idem"
	}
	return &redisStore{rdb: rdb, prefix: prefix}
}

func (s *redisStore) key(k string) string { return s.prefix + ":" + k }

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *redisStore) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.rdb.SetNX(ctx, s.key(key), payload, ttl).Result()
}
