// Package redis implements store.KV backed by Redis, used for the alias
// cache and approval queue's cross-process shared state (spec §5, §6).
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cos-systems/cos/store"
)

// Store is a store.KV implementation backed by a Redis client.
type Store struct {
	client *goredis.Client
	// KeyPrefix namespaces every key, letting several logical stores (alias
	// cache, approval queue) share one Redis instance without collisions.
	KeyPrefix string
}

var _ store.KV = (*Store)(nil)

// New wraps an existing Redis client. prefix namespaces all keys.
func New(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, KeyPrefix: prefix}
}

func (s *Store) key(k string) string { return s.KeyPrefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.KeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
