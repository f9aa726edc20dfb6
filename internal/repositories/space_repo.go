package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TenantSpaceRepository 租户空间数据访问接口
// 已用字节数只通过 TryReserve / AddUsed 两个原子更新修改
type TenantSpaceRepository interface {
	Create(ctx context.Context, space *models.TenantSpace) error
	FindByID(ctx context.Context, id uint64) (*models.TenantSpace, error)
	FindByTenantModule(ctx context.Context, tenantID, moduleID uint64) (*models.TenantSpace, error)
	ListByTenant(ctx context.Context, tenantID uint64) ([]models.TenantSpace, error)
	UpdateQuota(ctx context.Context, id uint64, totalBytes int64) error
	// TryReserve 仅当 used+bytes <= total 时增加已用字节数，返回是否成功
	TryReserve(ctx context.Context, id uint64, bytes int64) (bool, error)
	// AddUsed 加上有符号增量，结果不小于 0
	AddUsed(ctx context.Context, id uint64, delta int64) error
}

type tenantSpaceRepository struct {
	db *gorm.DB
}

var _ TenantSpaceRepository = (*tenantSpaceRepository)(nil)

func NewTenantSpaceRepository(db *gorm.DB) TenantSpaceRepository {
	return &tenantSpaceRepository{db: db}
}

func (r *tenantSpaceRepository) Create(ctx context.Context, space *models.TenantSpace) error {
	if err := conn(ctx, r.db).Create(space).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return xerr.ErrSpaceAlreadyExists
		}
		logger.Error("Create: failed to create tenant space", zap.Uint64("tenantID", space.TenantID), zap.Uint64("moduleID", space.ModuleID), zap.Error(err))
		return fmt.Errorf("failed to create tenant space: %w", err)
	}
	return nil
}

func (r *tenantSpaceRepository) FindByID(ctx context.Context, id uint64) (*models.TenantSpace, error) {
	var space models.TenantSpace
	if err := conn(ctx, r.db).First(&space, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrSpaceNotFound
		}
		return nil, fmt.Errorf("failed to find tenant space %d: %w", id, err)
	}
	return &space, nil
}

func (r *tenantSpaceRepository) FindByTenantModule(ctx context.Context, tenantID, moduleID uint64) (*models.TenantSpace, error) {
	var space models.TenantSpace
	err := conn(ctx, r.db).Where("tenant_id = ? AND module_id = ?", tenantID, moduleID).First(&space).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrSpaceNotFound
		}
		return nil, fmt.Errorf("failed to find tenant space: %w", err)
	}
	return &space, nil
}

func (r *tenantSpaceRepository) ListByTenant(ctx context.Context, tenantID uint64) ([]models.TenantSpace, error) {
	var spaces []models.TenantSpace
	if err := conn(ctx, r.db).Where("tenant_id = ?", tenantID).Order("module_id ASC").Find(&spaces).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenant spaces: %w", err)
	}
	return spaces, nil
}

func (r *tenantSpaceRepository) UpdateQuota(ctx context.Context, id uint64, totalBytes int64) error {
	res := conn(ctx, r.db).Model(&models.TenantSpace{}).Where("id = ?", id).Update("total_quota_bytes", totalBytes)
	if res.Error != nil {
		return fmt.Errorf("failed to update quota: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *tenantSpaceRepository) TryReserve(ctx context.Context, id uint64, bytes int64) (bool, error) {
	res := conn(ctx, r.db).Model(&models.TenantSpace{}).
		Where("id = ? AND is_active = ? AND used_bytes + ? <= total_quota_bytes", id, true, bytes).
		UpdateColumn("used_bytes", gorm.Expr("used_bytes + ?", bytes))
	if res.Error != nil {
		logger.Error("TryReserve: failed to reserve quota", zap.Uint64("spaceID", id), zap.Int64("bytes", bytes), zap.Error(res.Error))
		return false, fmt.Errorf("failed to reserve quota: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *tenantSpaceRepository) AddUsed(ctx context.Context, id uint64, delta int64) error {
	res := conn(ctx, r.db).Model(&models.TenantSpace{}).
		Where("id = ?", id).
		UpdateColumn("used_bytes", gorm.Expr("GREATEST(used_bytes + ?, 0)", delta))
	if res.Error != nil {
		logger.Error("AddUsed: failed to apply quota delta", zap.Uint64("spaceID", id), zap.Int64("delta", delta), zap.Error(res.Error))
		return fmt.Errorf("failed to apply quota delta: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// 已用量为 0 时扣减不会改变该行
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *tenantSpaceRepository) ensureExists(ctx context.Context, id uint64) error {
	ok, err := rowExists(ctx, r.db, &models.TenantSpace{}, id)
	if err != nil {
		return fmt.Errorf("failed to find tenant space %d: %w", id, err)
	}
	if !ok {
		return xerr.ErrSpaceNotFound
	}
	return nil
}
