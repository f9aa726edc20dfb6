package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisQueue 基于 redis list 的队列，LPUSH 入队，BRPOP 出队
type RedisQueue struct {
	client      *redis.Client
	name        string
	pollTimeout time.Duration
	closed      chan struct{}
}

var _ JobQueue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		client:      client,
		name:        name,
		pollTimeout: time.Second,
		closed:      make(chan struct{}),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, task models.ExportTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, body).Err(); err != nil {
		logger.Error("Failed to publish task", zap.String("queue", q.name), zap.Uint64("jobID", task.JobID), zap.Error(err))
		return fmt.Errorf("%w: %v", xerr.ErrMQError, err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context) (models.ExportTask, error) {
	for {
		select {
		case <-q.closed:
			return models.ExportTask{}, ErrQueueClosed
		case <-ctx.Done():
			return models.ExportTask{}, ctx.Err()
		default:
		}

		// 超时后重新检查 ctx，避免关闭时长时间阻塞
		res, err := q.client.BRPop(ctx, q.pollTimeout, q.name).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return models.ExportTask{}, ctx.Err()
			}
			return models.ExportTask{}, fmt.Errorf("%w: %v", xerr.ErrMQError, err)
		}

		// res[0] 是队列名，res[1] 是消息体
		var task models.ExportTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			logger.Error("Failed to unmarshal task, dropping", zap.String("body", res[1]), zap.Error(err))
			continue
		}
		return task, nil
	}
}

func (q *RedisQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
