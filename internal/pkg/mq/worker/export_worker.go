package worker

import (
	"context"
	"errors"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"go.uber.org/zap"
)

// ExportProcessor 由导出服务实现
type ExportProcessor interface {
	Process(ctx context.Context, jobID uint64) error
	SweepStale(ctx context.Context) (int, error)
}

// ExportWorker 从队列取任务ID并交给 ExportProcessor 处理
type ExportWorker struct {
	id        int
	queue     mq.JobQueue
	processor ExportProcessor
	log       *zap.Logger
}

func NewExportWorker(id int, queue mq.JobQueue, processor ExportProcessor) *ExportWorker {
	return &ExportWorker{
		id:        id,
		queue:     queue,
		processor: processor,
		log:       logger.With(zap.String("worker", "export"), zap.Int("workerID", id)),
	}
}

// Run 阻塞直到 ctx 结束或队列关闭
func (w *ExportWorker) Run(ctx context.Context) {
	w.log.Info("Export worker started")
	defer w.log.Info("Export worker stopped")

	for {
		task, err := w.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mq.ErrQueueClosed) {
				return
			}
			w.log.Error("Failed to consume export task", zap.Error(err))
			// 避免队列故障时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// 处理失败只记录，任务状态由处理方写入数据库
		if err := w.processor.Process(ctx, task.JobID); err != nil {
			w.log.Error("Export job processing error", zap.Uint64("jobID", task.JobID), zap.Error(err))
		}
	}
}

// Sweeper 定时清理长时间未结束的导出任务
type Sweeper struct {
	processor ExportProcessor
	interval  time.Duration
	log       *zap.Logger
}

func NewSweeper(processor ExportProcessor, interval time.Duration) *Sweeper {
	return &Sweeper{
		processor: processor,
		interval:  interval,
		log:       logger.With(zap.String("worker", "export-sweeper")),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.processor.SweepStale(ctx)
			if err != nil {
				s.log.Error("Failed to sweep stale export jobs", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Warn("Stale export jobs marked failed", zap.Int("count", n))
			}
		}
	}
}
