package repositories

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FolderRepository 目录数据访问接口
type FolderRepository interface {
	Create(ctx context.Context, folder *models.Folder) error
	Update(ctx context.Context, folder *models.Folder) error
	FindByID(ctx context.Context, id uint64) (*models.Folder, error)
	FindChildren(ctx context.Context, parentID uint64) ([]models.Folder, error) // 只返回有效的子目录
	FindRoots(ctx context.Context, spaceID uint64) ([]models.Folder, error)
	ExistsByName(ctx context.Context, spaceID uint64, parentID *uint64, name string) (bool, error)
	UpdatePathPrefix(ctx context.Context, spaceID uint64, oldPrefix, newPrefix string) error
	Deactivate(ctx context.Context, ids []uint64) error
}

type folderRepository struct {
	db *gorm.DB
}

var _ FolderRepository = (*folderRepository)(nil)

func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if err := conn(ctx, r.db).Create(folder).Error; err != nil {
		logger.Error("Create: failed to create folder", zap.Uint64("spaceID", folder.SpaceID), zap.String("name", folder.Name), zap.Error(err))
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

func (r *folderRepository) Update(ctx context.Context, folder *models.Folder) error {
	if err := conn(ctx, r.db).Save(folder).Error; err != nil {
		logger.Error("Update: failed to update folder", zap.Uint64("folderID", folder.ID), zap.Error(err))
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return nil
}

func (r *folderRepository) FindByID(ctx context.Context, id uint64) (*models.Folder, error) {
	var folder models.Folder
	err := conn(ctx, r.db).First(&folder, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrDirectoryNotFound
		}
		return nil, fmt.Errorf("failed to find folder %d: %w", id, err)
	}
	return &folder, nil
}

func (r *folderRepository) FindChildren(ctx context.Context, parentID uint64) ([]models.Folder, error) {
	var folders []models.Folder
	err := conn(ctx, r.db).
		Where("parent_id = ? AND is_active = ?", parentID, true).
		Order("name ASC, id ASC").
		Find(&folders).Error
	if err != nil {
		logger.Error("FindChildren: failed to list child folders", zap.Uint64("parentID", parentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list child folders: %w", err)
	}
	return folders, nil
}

func (r *folderRepository) FindRoots(ctx context.Context, spaceID uint64) ([]models.Folder, error) {
	var folders []models.Folder
	err := conn(ctx, r.db).
		Where("space_id = ? AND parent_id IS NULL AND is_active = ?", spaceID, true).
		Order("name ASC, id ASC").
		Find(&folders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list root folders: %w", err)
	}
	return folders, nil
}

func (r *folderRepository) ExistsByName(ctx context.Context, spaceID uint64, parentID *uint64, name string) (bool, error) {
	var count int64
	query := conn(ctx, r.db).Model(&models.Folder{}).
		Where("space_id = ? AND name = ? AND is_active = ?", spaceID, name, true)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check folder name: %w", err)
	}
	return count > 0, nil
}

// UpdatePathPrefix 把空间内所有以 oldPrefix+"/" 开头的路径替换为 newPrefix
// MySQL 的 SUBSTRING 按字符计数，这里用 rune 数
func (r *folderRepository) UpdatePathPrefix(ctx context.Context, spaceID uint64, oldPrefix, newPrefix string) error {
	err := conn(ctx, r.db).Model(&models.Folder{}).
		Where("space_id = ? AND path LIKE ?", spaceID, escapeLike(oldPrefix)+"/%").
		Update("path", gorm.Expr("CONCAT(?, SUBSTRING(path, ?))", newPrefix, utf8.RuneCountInString(oldPrefix)+1)).Error
	if err != nil {
		logger.Error("UpdatePathPrefix: failed to rewrite descendant paths",
			zap.Uint64("spaceID", spaceID), zap.String("oldPrefix", oldPrefix), zap.String("newPrefix", newPrefix), zap.Error(err))
		return fmt.Errorf("failed to update folder paths: %w", err)
	}
	return nil
}

func (r *folderRepository) Deactivate(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := conn(ctx, r.db).Model(&models.Folder{}).Where("id IN ?", ids).Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate folders: %w", err)
	}
	return nil
}
