package repositories

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"gorm.io/gorm"
)

type AccessHistoryRepository interface {
	Create(ctx context.Context, entry *models.FileAccessHistory) error
	ListByFile(ctx context.Context, fileID uint64, limit int) ([]models.FileAccessHistory, error)
}

type accessHistoryRepository struct {
	db *gorm.DB
}

func NewAccessHistoryRepository(db *gorm.DB) AccessHistoryRepository {
	return &accessHistoryRepository{db: db}
}

func (r *accessHistoryRepository) Create(ctx context.Context, entry *models.FileAccessHistory) error {
	if err := conn(ctx, r.db).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record file access: %w", err)
	}
	return nil
}

func (r *accessHistoryRepository) ListByFile(ctx context.Context, fileID uint64, limit int) ([]models.FileAccessHistory, error) {
	var entries []models.FileAccessHistory
	err := conn(ctx, r.db).Where("file_id = ?", fileID).Order("action_at DESC, id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list file access history: %w", err)
	}
	return entries, nil
}
