package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/distill"
)

// Get retrieves the value for key in the given namespace.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	v, err := s.client.HGet(ctx, nsKey(namespace), key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, distill.ErrKeyNotFound
		}
		return nil, fmt.Errorf("distill/redis: get %s/%s: %w", namespace, key, err)
	}
	return []byte(v), nil
}

// GetAll returns every key-value pair in the namespace.
func (s *Store) GetAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	vals, err := s.client.HGetAll(ctx, nsKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("distill/redis: get all %s: %w", namespace, err)
	}
	out := make(map[string][]byte, len(vals))
	for k, v := range vals {
		out[k] = []byte(v)
	}
	return out, nil
}

// Upsert writes the given key-value pairs into the namespace.
func (s *Store) Upsert(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = string(v)
	}
	if err := s.client.HSet(ctx, nsKey(namespace), fields).Err(); err != nil {
		return fmt.Errorf("distill/redis: upsert %s: %w", namespace, err)
	}
	return nil
}

// FilterNew returns the keys not yet present in the namespace.
func (s *Store) FilterNew(ctx context.Context, namespace string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.BoolCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HExists(ctx, nsKey(namespace), k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("distill/redis: filter new %s: %w", namespace, err)
	}

	out := make([]string, 0, len(keys))
	for i, cmd := range cmds {
		if !cmd.Val() {
			out = append(out, keys[i])
		}
	}
	return out, nil
}
