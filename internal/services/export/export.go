package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/cache"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/metrics"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"github.com/3Eeeecho/go-docspace/internal/pkg/storage"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"github.com/3Eeeecho/go-docspace/internal/services/access"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"go.uber.org/zap"
)

const archiveContentType = "application/zip"

// Service 批量导出：受理请求后立即返回 PENDING 任务，由后台 worker 打包
type Service interface {
	Start(ctx context.Context, actor explorer.Actor, folderID uint64, includeSubfolders bool) (*models.ExportJob, error)
	Get(ctx context.Context, actor explorer.Actor, jobID uint64) (*models.ExportJob, error)
	ListByRequester(ctx context.Context, actor explorer.Actor) ([]models.ExportJob, error)
	// Cancel 请求取消，处理中的任务在下一个文件前停止
	Cancel(ctx context.Context, actor explorer.Actor, jobID uint64) (*models.ExportJob, error)

	// Process 由 worker 调用，抢占失败时直接返回
	Process(ctx context.Context, jobID uint64) error
	// SweepStale 把长时间停留在 PROCESSING 的任务标记为失败
	SweepStale(ctx context.Context) (int, error)
}

type Options struct {
	URLTTL         time.Duration
	StaleAfter     time.Duration
	TempDir        string
	StatusCacheTTL time.Duration
	MaxDepth       int
}

type service struct {
	jobRepo    repositories.ExportJobRepository
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	resolver   access.Resolver
	store      storage.ObjectStore
	queue      mq.JobQueue
	cache      cache.Cache // 可为 nil
	opts       Options
	now        func() time.Time
}

var _ Service = (*service)(nil)

func NewService(
	jobRepo repositories.ExportJobRepository,
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	resolver access.Resolver,
	store storage.ObjectStore,
	queue mq.JobQueue,
	statusCache cache.Cache,
	opts Options,
) Service {
	if opts.URLTTL <= 0 {
		opts.URLTTL = 24 * time.Hour
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = access.DefaultMaxDepth
	}
	return &service{
		jobRepo:    jobRepo,
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		resolver:   resolver,
		store:      store,
		queue:      queue,
		cache:      statusCache,
		opts:       opts,
		now:        time.Now,
	}
}

func (s *service) Start(ctx context.Context, actor explorer.Actor, folderID uint64, includeSubfolders bool) (*models.ExportJob, error) {
	root, err := s.folderRepo.FindByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !root.IsActive {
		return nil, xerr.ErrDirectoryNotFound
	}
	if err := s.resolver.Require(ctx, models.CapDownload, models.FolderRef(folderID), actor.SubjectID); err != nil {
		return nil, err
	}

	// 预先统计文件数作为进度分母，遍历方式与打包时一致
	total := 0
	err = explorer.WalkFolders(ctx, s.folderRepo, root, includeSubfolders, s.opts.MaxDepth, func(f *models.Folder, _ string) error {
		n, err := s.fileRepo.CountByFolder(ctx, f.ID, models.FileStatusActive)
		if err != nil {
			return err
		}
		total += int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	job := &models.ExportJob{
		RequesterID:       actor.SubjectID,
		RootFolderID:      folderID,
		Status:            models.JobPending,
		IncludeSubfolders: includeSubfolders,
		TotalFiles:        total,
		ExpirationTime:    now.Add(s.opts.URLTTL),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.queue.Publish(ctx, models.ExportTask{JobID: job.ID}); err != nil {
		logger.Error("Start: failed to enqueue export job", zap.Uint64("jobID", job.ID), zap.Error(err))
		s.finishFailed(context.WithoutCancel(ctx), job.ID, models.JobPending, "enqueue failed", 0, 0)
		return nil, fmt.Errorf("%w: enqueue export job", xerr.ErrMQError)
	}

	logger.Info("Export job accepted",
		zap.Uint64("jobID", job.ID),
		zap.Uint64("folderID", folderID),
		zap.Bool("includeSubfolders", includeSubfolders),
		zap.Int("totalFiles", total),
		zap.Uint64("requesterID", actor.SubjectID))
	return job, nil
}

func (s *service) Get(ctx context.Context, actor explorer.Actor, jobID uint64) (*models.ExportJob, error) {
	if job, ok := s.cached(ctx, jobID); ok {
		if job.RequesterID != actor.SubjectID {
			return nil, xerr.ErrPermissionDenied
		}
		return job, nil
	}

	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actor.SubjectID {
		logger.Warn("Export job requested by non-owner", zap.Uint64("jobID", jobID), zap.Uint64("subjectID", actor.SubjectID))
		return nil, xerr.ErrPermissionDenied
	}
	if job.Status.Terminal() {
		s.remember(ctx, job)
	}
	return job, nil
}

func (s *service) ListByRequester(ctx context.Context, actor explorer.Actor) ([]models.ExportJob, error) {
	return s.jobRepo.ListByRequester(ctx, actor.SubjectID)
}

func (s *service) Cancel(ctx context.Context, actor explorer.Actor, jobID uint64) (*models.ExportJob, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != actor.SubjectID {
		return nil, xerr.ErrPermissionDenied
	}

	ok, err := s.jobRepo.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %d already %s", xerr.ErrJobStateConflict, jobID, job.Status)
	}

	// 尚未被 worker 领取的任务直接结束，worker 抢占时会失败
	s.finishFailed(ctx, jobID, models.JobPending, xerr.ErrExportCancelled.Error(), 0, 0)

	logger.Info("Export cancellation requested", zap.Uint64("jobID", jobID), zap.Uint64("subjectID", actor.SubjectID))
	return s.jobRepo.FindByID(ctx, jobID)
}

// SweepStale 结束长时间停留在 PROCESSING 或 PENDING 的任务
// PROCESSING 超时多为 worker 崩溃，PENDING 超时说明队列消息已丢失，调用方需要重新发起
func (s *service) SweepStale(ctx context.Context) (int, error) {
	if s.opts.StaleAfter <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.opts.StaleAfter)

	stale, err := s.jobRepo.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, job := range stale {
		if s.finishFailed(ctx, job.ID, models.JobProcessing, "export timed out", job.ProcessedFiles, job.FailedFiles) {
			swept++
			logger.Warn("Stale export job marked failed", zap.Uint64("jobID", job.ID), zap.Timep("startedAt", job.StartedAt))
		}
	}

	unclaimed, err := s.jobRepo.FindUnclaimed(ctx, cutoff)
	if err != nil {
		return swept, err
	}
	for _, job := range unclaimed {
		if s.finishFailed(ctx, job.ID, models.JobPending, "export was never picked up", 0, 0) {
			swept++
			logger.Warn("Unclaimed export job marked failed", zap.Uint64("jobID", job.ID), zap.Time("createdAt", job.CreatedAt))
		}
	}
	return swept, nil
}

// finishFailed 以 CAS 方式写入 FAILED，返回是否由本次调用写入
func (s *service) finishFailed(ctx context.Context, jobID uint64, from models.JobStatus, message string, processed, failed int) bool {
	ok, err := s.jobRepo.Transition(ctx, jobID, from, models.JobFailed, map[string]any{
		"error_message":   message,
		"completed_at":    s.now(),
		"processed_files": processed,
		"failed_files":    failed,
	})
	if err != nil {
		logger.Error("Failed to mark export job failed", zap.Uint64("jobID", jobID), zap.Error(err))
		return false
	}
	if ok {
		metrics.ExportJobs.WithLabelValues(string(models.JobFailed)).Inc()
	}
	return ok
}

func (s *service) cached(ctx context.Context, jobID uint64) (*models.ExportJob, bool) {
	if s.cache == nil {
		return nil, false
	}
	var job models.ExportJob
	if err := s.cache.Get(ctx, cache.ExportJobKey(jobID), &job); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("Export status cache read failed", zap.Uint64("jobID", jobID), zap.Error(err))
		}
		return nil, false
	}
	return &job, true
}

// remember 缓存已结束的任务，终态不会再变化
func (s *service) remember(ctx context.Context, job *models.ExportJob) {
	if s.cache == nil || s.opts.StatusCacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, cache.ExportJobKey(job.ID), job, s.opts.StatusCacheTTL); err != nil {
		logger.Warn("Export status cache write failed", zap.Uint64("jobID", job.ID), zap.Error(err))
	}
}
