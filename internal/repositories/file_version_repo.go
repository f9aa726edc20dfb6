package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"gorm.io/gorm"
)

// FileVersionRepository 历史版本只追加，不提供修改和删除
type FileVersionRepository interface {
	Create(ctx context.Context, version *models.FileVersion) error
	FindByFileID(ctx context.Context, fileID uint64) ([]models.FileVersion, error)
	FindByNumber(ctx context.Context, fileID uint64, number int) (*models.FileVersion, error)
}

type fileVersionRepository struct {
	db *gorm.DB
}

func NewFileVersionRepository(db *gorm.DB) FileVersionRepository {
	return &fileVersionRepository{db: db}
}

func (r *fileVersionRepository) Create(ctx context.Context, version *models.FileVersion) error {
	if err := conn(ctx, r.db).Create(version).Error; err != nil {
		return fmt.Errorf("failed to create file version: %w", err)
	}
	return nil
}

func (r *fileVersionRepository) FindByFileID(ctx context.Context, fileID uint64) ([]models.FileVersion, error) {
	var versions []models.FileVersion
	err := conn(ctx, r.db).Where("file_id = ?", fileID).Order("version_number DESC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list file versions: %w", err)
	}
	return versions, nil
}

func (r *fileVersionRepository) FindByNumber(ctx context.Context, fileID uint64, number int) (*models.FileVersion, error) {
	var version models.FileVersion
	err := conn(ctx, r.db).Where("file_id = ? AND version_number = ?", fileID, number).First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to find file version: %w", err)
	}
	return &version, nil
}
