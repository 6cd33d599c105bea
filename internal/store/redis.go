package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token under a single Redis key, which lets several
// desk processes (a shell and one-shot commands) share one session.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to redisAddr and checks the connection.
func NewRedisStore(ctx context.Context, redisAddr, key string) (*RedisStore, error) {
	if key == "" {
		key = DefaultKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb, key: "desk:" + key}, nil
}

func (s *RedisStore) Set(ctx context.Context, token string) error {
	// 0 means no expiry; the server decides when a token goes stale.
	return s.rdb.Set(ctx, s.key, token, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	token, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

func (s *RedisStore) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
