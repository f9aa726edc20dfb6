package export

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/metrics"
	"github.com/3Eeeecho/go-docspace/internal/pkg/utils"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/services/explorer"
	"go.uber.org/zap"
)

// progress 打包过程中的计数
// processed 只计成功写入压缩包的文件，跳过的文件计入 failed
type progress struct {
	total     int
	processed int
	failed    int
	exported  []uint64
}

// step 记录一个文件处理完毕，processed 不超过预先统计的 total
// 统计之后新增的文件仍会打包，只是不再推进进度
func (p *progress) step(ok bool) {
	if !ok {
		p.failed++
		return
	}
	if p.processed < p.total {
		p.processed++
	}
}

func (s *service) Process(ctx context.Context, jobID uint64) error {
	log := logger.With(zap.Uint64("jobID", jobID))

	startedAt := s.now()
	// 任务ID已从队列取出，领取不能因 worker 退出而中断，否则任务会停在 PENDING
	claimed, err := s.jobRepo.Transition(context.WithoutCancel(ctx), jobID, models.JobPending, models.JobProcessing, map[string]any{
		"started_at": startedAt,
	})
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("Export job already claimed or finished, skipping")
		return nil
	}

	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		s.finishFailed(context.WithoutCancel(ctx), jobID, models.JobProcessing, err.Error(), 0, 0)
		return err
	}

	log.Info("Export job started", zap.Uint64("folderID", job.RootFolderID), zap.Int("totalFiles", job.TotalFiles))
	p := &progress{total: job.TotalFiles}

	arc, err := s.assemble(ctx, job, p, log)
	if err != nil {
		// 结束状态必须写入，即使 worker 正在退出
		s.fail(context.WithoutCancel(ctx), job, p, err, log)
		return nil
	}
	defer arc.discard()

	if err := s.complete(ctx, job, arc, p, log); err != nil {
		s.fail(context.WithoutCancel(ctx), job, p, err, log)
	}
	metrics.ExportDuration.Observe(time.Since(startedAt).Seconds())
	return nil
}

// assemble 按与预统计相同的顺序遍历目录，逐个写入压缩包
func (s *service) assemble(ctx context.Context, job *models.ExportJob, p *progress, log *zap.Logger) (*archive, error) {
	root, err := s.folderRepo.FindByID(ctx, job.RootFolderID)
	if err != nil {
		return nil, err
	}
	if !root.IsActive {
		return nil, xerr.ErrDirectoryNotFound
	}

	arc, err := newArchive(s.opts.TempDir)
	if err != nil {
		return nil, err
	}

	err = explorer.WalkFolders(ctx, s.folderRepo, root, job.IncludeSubfolders, s.opts.MaxDepth, func(folder *models.Folder, rel string) error {
		files, err := s.fileRepo.FindByFolder(ctx, folder.ID, models.FileStatusActive)
		if err != nil {
			return err
		}
		for i := range files {
			if err := s.checkCancel(ctx, job.ID); err != nil {
				return err
			}
			if err := s.addFile(ctx, arc, &files[i], path.Join(rel, files[i].Name), p, log); err != nil {
				return err
			}
			if err := s.jobRepo.UpdateProgress(ctx, job.ID, p.processed, p.failed); err != nil {
				log.Warn("Failed to persist export progress", zap.Error(err))
			}
		}
		return nil
	})
	if err == nil {
		// 空目录树不会进入循环，上传前再检查一次
		err = s.checkCancel(ctx, job.ID)
	}
	if err != nil {
		arc.discard()
		return nil, err
	}
	return arc, nil
}

// addFile 打开或读取失败的文件跳过并计为失败，只有压缩包本身出错才中止任务
func (s *service) addFile(ctx context.Context, arc *archive, file *models.File, name string, p *progress, log *zap.Logger) error {
	skip := func(err error) {
		log.Warn("Skipping unreadable file in export",
			zap.Uint64("fileID", file.ID),
			zap.String("entry", name),
			zap.Error(err))
		metrics.ExportFiles.WithLabelValues("failed").Inc()
		p.step(false)
	}

	obj, err := s.store.Get(ctx, file.StorageKey)
	if err != nil {
		skip(err)
		return nil
	}
	defer obj.Reader.Close()

	if err := arc.add(name, file.UpdatedAt, obj.Reader); err != nil {
		var srcErr *sourceError
		if errors.As(err, &srcErr) {
			skip(err)
			return nil
		}
		metrics.ExportFiles.WithLabelValues("failed").Inc()
		return err
	}
	metrics.ExportFiles.WithLabelValues("ok").Inc()
	p.exported = append(p.exported, file.ID)
	p.step(true)
	return nil
}

func (s *service) checkCancel(ctx context.Context, jobID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := s.jobRepo.IsCancelRequested(ctx, jobID)
	if err != nil {
		return err
	}
	if cancelled {
		return xerr.ErrExportCancelled
	}
	return nil
}

// complete 上传压缩包并以 CAS 写入 COMPLETED
func (s *service) complete(ctx context.Context, job *models.ExportJob, arc *archive, p *progress, log *zap.Logger) error {
	size, err := arc.finish()
	if err != nil {
		return err
	}

	key := utils.BuildArchiveKey()
	if _, err := s.store.Put(ctx, key, arc.reader(), size, archiveContentType); err != nil {
		return fmt.Errorf("上传导出压缩包失败: %w", err)
	}
	url, err := s.store.PresignedGetURL(ctx, key, s.opts.URLTTL)
	if err != nil {
		s.deleteArchive(key, log)
		return err
	}

	if len(p.exported) > 0 {
		if err := s.fileRepo.MarkNotDownloaded(ctx, p.exported); err != nil {
			log.Warn("Failed to mark exported files as not downloaded", zap.Error(err))
		}
	}

	now := s.now()
	ok, err := s.jobRepo.Transition(context.WithoutCancel(ctx), job.ID, models.JobProcessing, models.JobCompleted, map[string]any{
		"completed_at":    now,
		"download_url":    url,
		"archive_key":     key,
		"archive_size":    size,
		"processed_files": p.processed,
		"failed_files":    p.failed,
		"expiration_time": now.Add(s.opts.URLTTL),
	})
	if err != nil {
		s.deleteArchive(key, log)
		return err
	}
	if !ok {
		// 已被清扫任务判定超时，结果作废
		log.Warn("Export job left PROCESSING before completion, discarding archive")
		s.deleteArchive(key, log)
		return nil
	}

	metrics.ExportJobs.WithLabelValues(string(models.JobCompleted)).Inc()
	log.Info("Export job completed",
		zap.Int("processedFiles", p.processed),
		zap.Int("failedFiles", p.failed),
		zap.Int64("archiveSize", size))
	s.rememberByID(context.WithoutCancel(ctx), job.ID)
	return nil
}

func (s *service) fail(ctx context.Context, job *models.ExportJob, p *progress, cause error, log *zap.Logger) {
	message := cause.Error()
	if errors.Is(cause, xerr.ErrExportCancelled) {
		message = xerr.ErrExportCancelled.Error()
		log.Info("Export job cancelled", zap.Int("processedFiles", p.processed))
	} else {
		log.Error("Export job failed", zap.Int("processedFiles", p.processed), zap.Error(cause))
	}
	if s.finishFailed(ctx, job.ID, models.JobProcessing, message, p.processed, p.failed) {
		s.rememberByID(ctx, job.ID)
	}
}

func (s *service) deleteArchive(key string, log *zap.Logger) {
	if err := s.store.Delete(context.Background(), key); err != nil {
		log.Warn("Failed to delete orphaned export archive", zap.String("key", key), zap.Error(err))
	}
}

func (s *service) rememberByID(ctx context.Context, jobID uint64) {
	if s.cache == nil {
		return
	}
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return
	}
	s.remember(ctx, job)
}
