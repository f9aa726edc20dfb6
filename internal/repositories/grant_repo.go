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

// GrantRepository 授权记录数据访问接口
type GrantRepository interface {
	Create(ctx context.Context, grant *models.Grant) error
	Update(ctx context.Context, grant *models.Grant) error
	FindByID(ctx context.Context, id uint64) (*models.Grant, error)
	// FindByResourceSubject 返回 (资源, 主体) 对应的那一行，不论是否有效
	FindByResourceSubject(ctx context.Context, ref models.ResourceRef, subjectID uint64) (*models.Grant, error)
	// FindActive 返回 now 时刻生效的授权，没有时返回 ErrGrantNotFound
	FindActive(ctx context.Context, ref models.ResourceRef, subjectID uint64, now time.Time) (*models.Grant, error)
	ListByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error)
	ListBySubject(ctx context.Context, subjectID uint64) ([]models.Grant, error)
}

type grantRepository struct {
	db *gorm.DB
}

var _ GrantRepository = (*grantRepository)(nil)

func NewGrantRepository(db *gorm.DB) GrantRepository {
	return &grantRepository{db: db}
}

func (r *grantRepository) Create(ctx context.Context, grant *models.Grant) error {
	if err := conn(ctx, r.db).Create(grant).Error; err != nil {
		logger.Error("Create: failed to create grant",
			zap.String("resource", grant.Resource().String()), zap.Uint64("subjectID", grant.SubjectID), zap.Error(err))
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

func (r *grantRepository) Update(ctx context.Context, grant *models.Grant) error {
	if err := conn(ctx, r.db).Save(grant).Error; err != nil {
		logger.Error("Update: failed to update grant", zap.Uint64("grantID", grant.ID), zap.Error(err))
		return fmt.Errorf("failed to update grant: %w", err)
	}
	return nil
}

func (r *grantRepository) FindByID(ctx context.Context, id uint64) (*models.Grant, error) {
	var grant models.Grant
	if err := conn(ctx, r.db).First(&grant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to find grant %d: %w", id, err)
	}
	return &grant, nil
}

func (r *grantRepository) FindByResourceSubject(ctx context.Context, ref models.ResourceRef, subjectID uint64) (*models.Grant, error) {
	var grant models.Grant
	err := conn(ctx, r.db).
		Where("resource_kind = ? AND resource_id = ? AND subject_id = ?", ref.Kind, ref.ID, subjectID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	return &grant, nil
}

func (r *grantRepository) FindActive(ctx context.Context, ref models.ResourceRef, subjectID uint64, now time.Time) (*models.Grant, error) {
	var grant models.Grant
	err := conn(ctx, r.db).
		Where("resource_kind = ? AND resource_id = ? AND subject_id = ? AND active = ?", ref.Kind, ref.ID, subjectID, true).
		Where("valid_from <= ? AND (valid_until IS NULL OR valid_until > ?)", now, now).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to find active grant: %w", err)
	}
	return &grant, nil
}

func (r *grantRepository) ListByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error) {
	var grants []models.Grant
	err := conn(ctx, r.db).
		Where("resource_kind = ? AND resource_id = ?", ref.Kind, ref.ID).
		Order("id ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

func (r *grantRepository) ListBySubject(ctx context.Context, subjectID uint64) ([]models.Grant, error) {
	var grants []models.Grant
	if err := conn(ctx, r.db).Where("subject_id = ?", subjectID).Order("id ASC").Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}
