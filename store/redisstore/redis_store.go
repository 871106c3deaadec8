// Package redisstore persists session items in Redis, for devices that share a local
// Redis instance between processes.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-invoice-session/store"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*RedisStore)(nil)

type RedisStore struct {
	client    *redis.Client
	namespace string
}

// New wraps an existing client. Keys are stored as "<namespace>:<key>".
func New(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

// NewWithURL creates a client from a redis:// URL.
func NewWithURL(url, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(redis.NewClient(opts), namespace), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Put writes every item inside MULTI/EXEC.
func (s *RedisStore) Put(ctx context.Context, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range items {
			pipe.Set(ctx, s.key(key), value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session items: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaced = append(namespaced, s.key(key))
	}
	if err := s.client.Del(ctx, namespaced...).Err(); err != nil {
		return fmt.Errorf("failed to delete session items: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.namespace + ":" + key
}
