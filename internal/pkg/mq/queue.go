package mq

import (
	"context"
	"errors"

	"github.com/3Eeeecho/go-docspace/internal/models"
)

var ErrQueueClosed = errors.New("队列已关闭")

// JobQueue 导出任务队列，消息只携带任务ID，状态以数据库为准
type JobQueue interface {
	Publish(ctx context.Context, task models.ExportTask) error
	// Consume 阻塞直到取到一条消息或 ctx 结束
	Consume(ctx context.Context) (models.ExportTask, error)
	Close() error
}

// MemoryQueue 进程内队列，用于单机运行和测试
type MemoryQueue struct {
	ch     chan models.ExportTask
	closed chan struct{}
}

var _ JobQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		ch:     make(chan models.ExportTask, capacity),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, task models.ExportTask) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- task:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (models.ExportTask, error) {
	select {
	case task := <-q.ch:
		return task, nil
	case <-q.closed:
		return models.ExportTask{}, ErrQueueClosed
	case <-ctx.Done():
		return models.ExportTask{}, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
