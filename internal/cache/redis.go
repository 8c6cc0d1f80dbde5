package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

const scanBatch = 100

// RedisKV namespaces every key under prefix so Clear and Keys only touch
// this cache's entries.
type RedisKV struct {
	client *redis.Client
	prefix string
	init   lazyInit
}

var _ KV = (*RedisKV)(nil)

func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "gym:cache"
	}
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(k string) string {
	return r.prefix + ":" + k
}

func (r *RedisKV) Init(ctx context.Context) error {
	return r.init.ensure(ctx, func(ctx context.Context) error {
		if err := r.client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis cache: %w", err)
		}
		return nil
	})
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	if err := r.Init(ctx); err != nil {
		return "", err
	}
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisKV) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisKV) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, r.prefix+":"))
	}
	sort.Strings(out)
	return out, nil
}

func (r *RedisKV) Length(ctx context.Context) (int, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// scan returns the full redis keys under the prefix, each once.
func (r *RedisKV) scan(ctx context.Context) ([]string, error) {
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	var (
		cursor uint64
		keys   []string
		seen   = map[string]struct{}{}
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+":*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		keys = mergeKeys(keys, seen, batch)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// mergeKeys appends the keys of batch not already in seen. SCAN may return
// a key more than once when the keyspace changes mid-iteration.
func mergeKeys(keys []string, seen map[string]struct{}, batch []string) []string {
	for _, k := range batch {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
