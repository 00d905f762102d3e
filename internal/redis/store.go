package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/store"
)

// Store implements store.Store on Redis strings and lists. Every key is
// namespaced under the configured prefix.
type Store struct {
	client *Client
	logger *zap.Logger
	prefix string
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Redis-backed store. prefix is typically the account id.
func NewStore(client *Client, logger *zap.Logger, prefix string) *Store {
	return &Store{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (s *Store) buildKey(key string) string {
	return fmt.Sprintf("beacon:%s:%s", s.prefix, key)
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := s.client.rdb.Get(ctx, s.buildKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return v, nil
}

func (s *Store) PutInt(ctx context.Context, key string, value int64) error {
	if err := s.client.rdb.Set(ctx, s.buildKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.client.rdb.Incr(ctx, s.buildKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return v, nil
}

func (s *Store) PushBack(ctx context.Context, key string, items ...[]byte) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = item
	}
	if err := s.client.rdb.RPush(ctx, s.buildKey(key), values...).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

func (s *Store) PushFront(ctx context.Context, key string, item []byte) error {
	if err := s.client.rdb.LPush(ctx, s.buildKey(key), item).Err(); err != nil {
		return fmt.Errorf("redis lpush failed: %w", err)
	}
	return nil
}

func (s *Store) PopFront(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.rdb.LPop(ctx, s.buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis lpop failed: %w", err)
	}
	return v, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.rdb.LLen(ctx, s.buildKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen failed: %w", err)
	}
	return n, nil
}

func (s *Store) Range(ctx context.Context, key string) ([][]byte, error) {
	values, err := s.client.rdb.LRange(ctx, s.buildKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
