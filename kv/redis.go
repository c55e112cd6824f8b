package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

// RedisStore implements Store on a Redis instance. A namespace maps to the
// key prefix "<namespace>:", so ListKeys is a SCAN over that prefix.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func nsKey(namespace, key string) string {
	return namespace + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	val, err := s.client.Get(ctx, nsKey(namespace, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return val, nil
}

func (s *RedisStore) Put(ctx context.Context, namespace, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, nsKey(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	// DEL of a missing key is a no-op in Redis, which matches the idempotent
	// delete contract.
	if err := s.client.Del(ctx, nsKey(namespace, key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *RedisStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	prefix := namespace + ":"
	keys := []string{}
	var cursor uint64
	for {
		batch, cur, err := s.client.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, namespace, err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(prefix):])
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
