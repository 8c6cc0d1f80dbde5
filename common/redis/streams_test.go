package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLastStreamID_EmptyStream(t *testing.T) {
	client := setupTestRedis(t)

	id, err := LastStreamID(context.Background(), client, "gym:changes:clientes")
	require.NoError(t, err)
	assert.Equal(t, "0-0", id)
}

func TestPublishAndReadAfter(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	stream := "gym:changes:clientes"

	first, err := PublishToStream(ctx, client, stream, map[string]interface{}{"id": "c1", "op": "set"})
	require.NoError(t, err)

	last, err := LastStreamID(ctx, client, stream)
	require.NoError(t, err)
	assert.Equal(t, first, last)

	_, err = PublishToStream(ctx, client, stream, map[string]interface{}{"id": "c2", "op": "delete", "n": 2, "ok": true})
	require.NoError(t, err)

	msgs, err := ReadStreamAfter(ctx, client, stream, first, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c2", msgs[0].Values["id"])
	assert.Equal(t, "delete", msgs[0].Values["op"])
	assert.Equal(t, "2", msgs[0].Values["n"])
	assert.Equal(t, "true", msgs[0].Values["ok"])
}
