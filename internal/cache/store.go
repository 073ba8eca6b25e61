package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is the key-value cache the facade talks to. Implementations must
// treat every method as best-effort: the caller never depends on the cache
// for correctness.
type Store interface {
	// Available reports whether the backing store is usable at all.
	Available() bool
	// Get returns the value for key; ok is false on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key beginning with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Increment atomically increments the counter at key.
	Increment(ctx context.Context, key string) (int64, error)
}

// RedisStore adapts a go-redis client to the Store interface. When the server
// is unreachable at construction time the store marks itself disabled and
// every call becomes a no-op, so a cache outage degrades latency, never
// correctness.
type RedisStore struct {
	rdb      *redis.Client
	disabled bool
	logger   zerolog.Logger
}

// NewRedisStore pings the server once and returns the adapter. A failed ping
// is logged and yields a disabled store rather than an error.
func NewRedisStore(rdb *redis.Client, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{rdb: rdb, logger: logger}
	if rdb == nil {
		s.disabled = true
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("cache store unreachable, running without cache")
		s.disabled = true
	}
	return s
}

// Available reports whether the adapter accepted its backing client.
func (s *RedisStore) Available() bool {
	return !s.disabled
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.disabled {
		return "", false, nil
	}
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.disabled {
		return nil
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s.disabled || len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	if s.disabled {
		return nil
	}

	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	if s.disabled {
		return 0, nil
	}
	return s.rdb.Incr(ctx, key).Result()
}
