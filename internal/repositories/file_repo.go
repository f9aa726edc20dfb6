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

// FileRepository 文件数据访问接口
type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	Update(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id uint64) (*models.File, error)
	FindByFolder(ctx context.Context, folderID uint64, status models.FileStatus) ([]models.File, error)
	CountByFolder(ctx context.Context, folderID uint64, status models.FileStatus) (int64, error)
	ExistsByName(ctx context.Context, folderID uint64, name string) (bool, error) // 只检查 ACTIVE 文件
	// MarkDeletedInFolders 把目录下所有 ACTIVE 文件置为 DELETED，返回被释放的字节数
	MarkDeletedInFolders(ctx context.Context, folderIDs []uint64) (int64, error)
	UpdateViewStatus(ctx context.Context, id uint64, status models.ViewStatus, at time.Time) error
	// MarkNotDownloaded 对尚未 DOWNLOADED 的文件标记 NOT_DOWNLOADED
	MarkNotDownloaded(ctx context.Context, ids []uint64) error
}

type fileRepository struct {
	db *gorm.DB
}

var _ FileRepository = (*fileRepository)(nil)

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	if err := conn(ctx, r.db).Create(file).Error; err != nil {
		logger.Error("Create: failed to create file", zap.Uint64("folderID", file.FolderID), zap.String("name", file.Name), zap.Error(err))
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *fileRepository) Update(ctx context.Context, file *models.File) error {
	if err := conn(ctx, r.db).Save(file).Error; err != nil {
		logger.Error("Update: failed to update file", zap.Uint64("fileID", file.ID), zap.Error(err))
		return fmt.Errorf("failed to update file: %w", err)
	}
	return nil
}

func (r *fileRepository) FindByID(ctx context.Context, id uint64) (*models.File, error) {
	var file models.File
	err := conn(ctx, r.db).First(&file, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to find file %d: %w", id, err)
	}
	return &file, nil
}

func (r *fileRepository) FindByFolder(ctx context.Context, folderID uint64, status models.FileStatus) ([]models.File, error) {
	var files []models.File
	err := conn(ctx, r.db).
		Where("folder_id = ? AND status = ?", folderID, status).
		Order("name ASC, id ASC").
		Find(&files).Error
	if err != nil {
		logger.Error("FindByFolder: failed to list files", zap.Uint64("folderID", folderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (r *fileRepository) CountByFolder(ctx context.Context, folderID uint64, status models.FileStatus) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.File{}).
		Where("folder_id = ? AND status = ?", folderID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

func (r *fileRepository) ExistsByName(ctx context.Context, folderID uint64, name string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.File{}).
		Where("folder_id = ? AND name = ? AND status = ?", folderID, name, models.FileStatusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check file name: %w", err)
	}
	return count > 0, nil
}

func (r *fileRepository) MarkDeletedInFolders(ctx context.Context, folderIDs []uint64) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	db := conn(ctx, r.db)

	var freed struct{ Total int64 }
	err := db.Model(&models.File{}).
		Select("COALESCE(SUM(size), 0) AS total").
		Where("folder_id IN ? AND status = ?", folderIDs, models.FileStatusActive).
		Scan(&freed).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}

	err = db.Model(&models.File{}).
		Where("folder_id IN ? AND status = ?", folderIDs, models.FileStatusActive).
		Update("status", models.FileStatusDeleted).Error
	if err != nil {
		logger.Error("MarkDeletedInFolders: failed to mark files deleted", zap.Uint64s("folderIDs", folderIDs), zap.Error(err))
		return 0, fmt.Errorf("failed to mark files deleted: %w", err)
	}
	return freed.Total, nil
}

func (r *fileRepository) UpdateViewStatus(ctx context.Context, id uint64, status models.ViewStatus, at time.Time) error {
	updates := map[string]any{
		"view_status": status,
		"view_color":  status.Color(),
	}
	switch status {
	case models.ViewStatusViewed:
		updates["last_viewed_at"] = at
	case models.ViewStatusDownloaded:
		updates["last_downloaded_at"] = at
	}

	res := conn(ctx, r.db).Model(&models.File{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update view status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		ok, err := rowExists(ctx, r.db, &models.File{}, id)
		if err != nil {
			return fmt.Errorf("failed to find file %d: %w", id, err)
		}
		if !ok {
			return xerr.ErrFileNotFound
		}
	}
	return nil
}

func (r *fileRepository) MarkNotDownloaded(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := conn(ctx, r.db).Model(&models.File{}).
		Where("id IN ? AND view_status <> ?", ids, models.ViewStatusDownloaded).
		Updates(map[string]any{
			"view_status": models.ViewStatusNotDownloaded,
			"view_color":  models.ViewStatusNotDownloaded.Color(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark files not downloaded: %w", err)
	}
	return nil
}
