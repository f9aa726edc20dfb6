package explorer

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"github.com/3Eeeecho/go-docspace/internal/services/quota"
	"go.uber.org/zap"
)

// SpaceService 租户空间管理，空间只对同一租户可见
type SpaceService interface {
	Create(ctx context.Context, actor Actor, moduleID uint64, totalQuotaBytes int64) (*models.TenantSpace, error)
	Get(ctx context.Context, actor Actor, spaceID uint64) (*models.TenantSpace, error)
	ListByTenant(ctx context.Context, actor Actor) ([]models.TenantSpace, error)
	UpdateQuota(ctx context.Context, actor Actor, spaceID uint64, totalQuotaBytes int64) (*models.TenantSpace, error)
	Usage(ctx context.Context, actor Actor, spaceID uint64) (*quota.Usage, error)
}

type spaceService struct {
	spaceRepo repositories.TenantSpaceRepository
	quota     quota.Manager
}

var _ SpaceService = (*spaceService)(nil)

func NewSpaceService(spaceRepo repositories.TenantSpaceRepository, quotaManager quota.Manager) SpaceService {
	return &spaceService{spaceRepo: spaceRepo, quota: quotaManager}
}

func (s *spaceService) Create(ctx context.Context, actor Actor, moduleID uint64, totalQuotaBytes int64) (*models.TenantSpace, error) {
	if moduleID == 0 || totalQuotaBytes < 0 {
		return nil, fmt.Errorf("%w: module id and non-negative quota are required", xerr.ErrInvalidParams)
	}

	space := &models.TenantSpace{
		TenantID:        actor.TenantID,
		ModuleID:        moduleID,
		StoragePath:     models.SpaceStoragePath(actor.TenantID, moduleID),
		TotalQuotaBytes: totalQuotaBytes,
		IsActive:        true,
		CreatedBy:       actor.SubjectID,
	}
	if err := s.spaceRepo.Create(ctx, space); err != nil {
		return nil, err
	}

	logger.Info("Tenant space created",
		zap.Uint64("spaceID", space.ID),
		zap.Uint64("tenantID", space.TenantID),
		zap.Uint64("moduleID", space.ModuleID),
		zap.Int64("quota", space.TotalQuotaBytes))
	return space, nil
}

func (s *spaceService) Get(ctx context.Context, actor Actor, spaceID uint64) (*models.TenantSpace, error) {
	space, err := s.spaceRepo.FindByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space.TenantID != actor.TenantID {
		logger.Warn("Space belongs to another tenant",
			zap.Uint64("spaceID", spaceID), zap.Uint64("tenantID", actor.TenantID), zap.Uint64("ownerTenantID", space.TenantID))
		return nil, xerr.ErrPermissionDenied
	}
	return space, nil
}

func (s *spaceService) ListByTenant(ctx context.Context, actor Actor) ([]models.TenantSpace, error) {
	return s.spaceRepo.ListByTenant(ctx, actor.TenantID)
}

func (s *spaceService) UpdateQuota(ctx context.Context, actor Actor, spaceID uint64, totalQuotaBytes int64) (*models.TenantSpace, error) {
	if totalQuotaBytes < 0 {
		return nil, fmt.Errorf("%w: quota must not be negative", xerr.ErrInvalidParams)
	}
	space, err := s.Get(ctx, actor, spaceID)
	if err != nil {
		return nil, err
	}
	if space.CreatedBy != actor.SubjectID {
		return nil, xerr.ErrPermissionDenied
	}

	// 调小配额不会回收已用空间，只影响之后的写入
	if err := s.spaceRepo.UpdateQuota(ctx, spaceID, totalQuotaBytes); err != nil {
		return nil, err
	}
	space.TotalQuotaBytes = totalQuotaBytes
	logger.Info("Space quota updated", zap.Uint64("spaceID", spaceID), zap.Int64("quota", totalQuotaBytes))
	return space, nil
}

func (s *spaceService) Usage(ctx context.Context, actor Actor, spaceID uint64) (*quota.Usage, error) {
	if _, err := s.Get(ctx, actor, spaceID); err != nil {
		return nil, err
	}
	return s.quota.Usage(ctx, spaceID)
}
