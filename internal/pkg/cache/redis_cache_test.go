package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, ExportJobKey(1), payload{ID: 1, Status: "COMPLETED"}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, ExportJobKey(1), &got))
	assert.Equal(t, payload{ID: 1, Status: "COMPLETED"}, got)

	assert.True(t, mr.Exists(ExportJobKey(1)))
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	var got payload
	assert.ErrorIs(t, c.Get(context.Background(), "missing", &got), ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", payload{ID: 2}, time.Second))
	assert.Equal(t, time.Second, mr.TTL("k"))

	mr.FastForward(2 * time.Second)
	var got payload
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}
