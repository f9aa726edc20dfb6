package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExportJobRepository 导出任务数据访问接口
// 状态迁移统一走 Transition，以 status 列做比较交换
type ExportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id uint64) (*models.ExportJob, error)
	ListByRequester(ctx context.Context, requesterID uint64) ([]models.ExportJob, error)
	// Transition 仅当当前状态为 from 时迁移到 to 并写入 updates，返回是否迁移成功
	Transition(ctx context.Context, id uint64, from, to models.JobStatus, updates map[string]any) (bool, error)
	UpdateProgress(ctx context.Context, id uint64, processed, failed int) error
	// RequestCancel 仅对未结束的任务置取消标记
	RequestCancel(ctx context.Context, id uint64) (bool, error)
	IsCancelRequested(ctx context.Context, id uint64) (bool, error)
	FindStale(ctx context.Context, startedBefore time.Time) ([]models.ExportJob, error)
	// FindUnclaimed 返回创建早于 createdBefore 仍为 PENDING 的任务，通常是队列消息已丢失
	FindUnclaimed(ctx context.Context, createdBefore time.Time) ([]models.ExportJob, error)
}

type exportJobRepository struct {
	db *gorm.DB
}

var _ ExportJobRepository = (*exportJobRepository)(nil)

func NewExportJobRepository(db *gorm.DB) ExportJobRepository {
	return &exportJobRepository{db: db}
}

func (r *exportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if err := conn(ctx, r.db).Create(job).Error; err != nil {
		logger.Error("Create: failed to create export job", zap.Uint64("requesterID", job.RequesterID), zap.Error(err))
		return fmt.Errorf("failed to create export job: %w", err)
	}
	return nil
}

func (r *exportJobRepository) FindByID(ctx context.Context, id uint64) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := conn(ctx, r.db).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrExportNotFound
		}
		return nil, fmt.Errorf("failed to find export job %d: %w", id, err)
	}
	return &job, nil
}

func (r *exportJobRepository) ListByRequester(ctx context.Context, requesterID uint64) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	if err := conn(ctx, r.db).Where("requester_id = ?", requesterID).Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	return jobs, nil
}

func (r *exportJobRepository) Transition(ctx context.Context, id uint64, from, to models.JobStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := conn(ctx, r.db).Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		logger.Error("Transition: failed to update export job status",
			zap.Uint64("jobID", id), zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(res.Error))
		return false, fmt.Errorf("failed to transition export job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *exportJobRepository) UpdateProgress(ctx context.Context, id uint64, processed, failed int) error {
	err := conn(ctx, r.db).Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, models.JobProcessing).
		Updates(map[string]any{"processed_files": processed, "failed_files": failed}).Error
	if err != nil {
		return fmt.Errorf("failed to update export progress: %w", err)
	}
	return nil
}

func (r *exportJobRepository) RequestCancel(ctx context.Context, id uint64) (bool, error) {
	res := conn(ctx, r.db).Model(&models.ExportJob{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobPending, models.JobProcessing}).
		Update("cancel_requested", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to request cancellation: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// 重复取消时该行不变，按当前状态判断
	var job models.ExportJob
	if err := conn(ctx, r.db).Select("id", "status", "cancel_requested").First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return job.CancelRequested && !job.Status.Terminal(), nil
}

func (r *exportJobRepository) IsCancelRequested(ctx context.Context, id uint64) (bool, error) {
	var job models.ExportJob
	if err := conn(ctx, r.db).Select("id", "cancel_requested").First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, xerr.ErrExportNotFound
		}
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return job.CancelRequested, nil
}

func (r *exportJobRepository) FindStale(ctx context.Context, startedBefore time.Time) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	err := conn(ctx, r.db).
		Where("status = ? AND started_at < ?", models.JobProcessing, startedBefore).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale export jobs: %w", err)
	}
	return jobs, nil
}

func (r *exportJobRepository) FindUnclaimed(ctx context.Context, createdBefore time.Time) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	err := conn(ctx, r.db).
		Where("status = ? AND created_at < ?", models.JobPending, createdBefore).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unclaimed export jobs: %w", err)
	}
	return jobs, nil
}
