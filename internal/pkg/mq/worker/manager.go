package worker

import (
	"context"
	"sync"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"go.uber.org/zap"
)

// Manager 管理应用中所有后台 Worker 的生命周期
type Manager struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// StartAllWorkers 启动导出 worker 池和超时清理任务，返回的 Manager 用于停止
func StartAllWorkers(ctx context.Context, cfg *config.ExportConfig, queue mq.JobQueue, processor ExportProcessor) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{cancel: cancel}

	// --- 导出 worker 池 ---
	for i := 1; i <= cfg.Workers; i++ {
		w := NewExportWorker(i, queue, processor)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Run(ctx)
		}()
	}

	// --- 超时任务清理 ---
	if cfg.SweepInterval > 0 {
		s := NewSweeper(processor, cfg.SweepInterval)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			s.Run(ctx)
		}()
	}

	logger.Info("所有后台工作进程已启动。", zap.Int("exportWorkers", cfg.Workers))
	return m
}

// Stop 通知所有 worker 退出并等待正在处理的任务结束
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	logger.Info("所有后台工作进程已停止。")
}
