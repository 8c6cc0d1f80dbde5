package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sqlite := NewSQLiteKV(filepath.Join(t.TempDir(), "cache.db"))
	t.Cleanup(func() { sqlite.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"redis":  NewRedisKV(client, "test:cache"),
		"sqlite": sqlite,
	}
}

func TestKV_UsableBeforeInit(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, kv.Set(ctx, "a", "1"))
			v, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "1", v)

			require.NoError(t, kv.Init(ctx))
			require.NoError(t, kv.Init(ctx))
			v, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "1", v)
		})
	}
}

func TestKV_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Set(ctx, "b", "2"))
			require.NoError(t, kv.Set(ctx, "a", "1"))
			require.NoError(t, kv.Set(ctx, "a", "3"))

			keys, err := kv.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			n, err := kv.Length(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, kv.Remove(ctx, "a"))
			require.NoError(t, kv.Remove(ctx, "a"))
			_, err = kv.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, kv.Clear(ctx))
			n, err = kv.Length(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRedisKV_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("other", "x"))

	kv := NewRedisKV(client, "")
	require.NoError(t, kv.Set(ctx, "snap", "[]"))
	assert.True(t, mr.Exists("gym:cache:snap"))

	require.NoError(t, kv.Clear(ctx))
	assert.False(t, mr.Exists("gym:cache:snap"))
	assert.True(t, mr.Exists("other"))
}

func TestMergeKeys_DropsRepeats(t *testing.T) {
	seen := map[string]struct{}{}
	keys := mergeKeys(nil, seen, []string{"p:a", "p:b"})
	keys = mergeKeys(keys, seen, []string{"p:b", "p:c", "p:a"})
	assert.Equal(t, []string{"p:a", "p:b", "p:c"}, keys)
}

func TestRedisKV_KeysAcrossScanPages(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	kv := NewRedisKV(client, "test:cache")
	n := 3*scanBatch + 7
	for i := 0; i < n; i++ {
		require.NoError(t, kv.Set(ctx, fmt.Sprintf("k%04d", i), "v"))
	}

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, n)
	assert.Equal(t, "k0000", keys[0])
	length, err := kv.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, length)
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first := NewSQLiteKV(path)
	require.NoError(t, first.Set(ctx, "k", "v"))
	require.NoError(t, first.Close())

	second := NewSQLiteKV(path)
	defer second.Close()
	v, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
