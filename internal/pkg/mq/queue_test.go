package mq

import (
	"context"
	"testing"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: 1}))
	require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: 2}))

	first, err := q.Consume(ctx)
	require.NoError(t, err)
	second, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.JobID)
	assert.Equal(t, uint64(2), second.JobID)
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Consume(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), models.ExportTask{JobID: 1}), ErrQueueClosed)
}

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := NewRedisQueue(client, "docspace:export:jobs")
	q.pollTimeout = 50 * time.Millisecond
	return q, mr
}

func TestRedisQueue_PublishConsume(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: 11}))
	require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: 12}))

	items, err := mr.List("docspace:export:jobs")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	task, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), task.JobID)
}

func TestRedisQueue_SkipsMalformed(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	_, err := mr.Lpush("docspace:export:jobs", "not-json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: 5}))

	task, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), task.JobID)
}

func TestRedisQueue_ConsumeStopsOnContext(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.Consume(ctx)
	assert.Error(t, err)
}
