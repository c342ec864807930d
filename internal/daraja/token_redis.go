package daraja

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenStore shares cached tokens across instances so a horizontally
// scaled deployment does not hammer the OAuth endpoint once per process.
type redisTokenStore struct {
	rdb *redis.Client
}

// NewRedisTokenStore returns a TokenStore backed by the given redis address.
func NewRedisTokenStore(addr string) TokenStore {
	return &redisTokenStore{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *redisTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	tok, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}

func (s *redisTokenStore) Put(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, token, ttl).Err()
}
