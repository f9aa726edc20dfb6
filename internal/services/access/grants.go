package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/cache"
	"github.com/3Eeeecho/go-docspace/internal/pkg/lock"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GrantManager 维护授权记录，保证每个 (资源, 主体) 至多一条有效授权
type GrantManager interface {
	Assign(ctx context.Context, ref models.ResourceRef, subjectID uint64, caps models.Capabilities, granterID uint64, validUntil *time.Time) (*models.Grant, error)
	Revoke(ctx context.Context, grantID uint64) (*models.Grant, error)
	Update(ctx context.Context, grantID uint64, caps models.Capabilities, validUntil *time.Time, updatedBy uint64) (*models.Grant, error)
	Get(ctx context.Context, grantID uint64) (*models.Grant, error)

	// ListByResource 包含已撤销和已过期的记录
	ListByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error)
	// EffectiveByResource 只返回此刻生效的授权
	EffectiveByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error)
	ListBySubject(ctx context.Context, subjectID uint64) ([]models.Grant, error)
}

type grantManager struct {
	grantRepo  repositories.GrantRepository
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	tm         repositories.TransactionManager
	locker     lock.Locker
	lockTTL    time.Duration
	now        func() time.Time
}

var _ GrantManager = (*grantManager)(nil)

func NewGrantManager(
	grantRepo repositories.GrantRepository,
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	tm repositories.TransactionManager,
	locker lock.Locker,
	lockTTL time.Duration,
) GrantManager {
	return &grantManager{
		grantRepo:  grantRepo,
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		tm:         tm,
		locker:     locker,
		lockTTL:    lockTTL,
		now:        time.Now,
	}
}

func (m *grantManager) Assign(ctx context.Context, ref models.ResourceRef, subjectID uint64, caps models.Capabilities, granterID uint64, validUntil *time.Time) (*models.Grant, error) {
	now := m.now()
	if subjectID == 0 {
		return nil, fmt.Errorf("%w: subject id is required", xerr.ErrInvalidParams)
	}
	if validUntil != nil && !validUntil.After(now) {
		return nil, fmt.Errorf("%w: valid_until must be in the future", xerr.ErrInvalidParams)
	}
	if err := m.ensureResource(ctx, ref); err != nil {
		return nil, err
	}

	// 同一 (资源, 主体) 的授权串行执行，唯一索引兜底
	unlock, err := m.locker.Lock(ctx, cache.GrantLockKey(ref.String(), subjectID), m.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *models.Grant
	err = m.tm.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := m.grantRepo.FindByResourceSubject(ctx, ref, subjectID)
		if err != nil && !errors.Is(err, xerr.ErrGrantNotFound) {
			return err
		}

		if existing == nil {
			grant := &models.Grant{
				ResourceKind: ref.Kind,
				ResourceID:   ref.ID,
				SubjectID:    subjectID,
				GrantedBy:    granterID,
				GrantedAt:    now,
				ValidFrom:    now,
				ValidUntil:   validUntil,
				Active:       true,
			}
			grant.SetCapabilities(caps)
			err := m.grantRepo.Create(ctx, grant)
			if err == nil {
				result = grant
				return nil
			}
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			// 其他实例抢先插入，转为更新
			existing, err = m.grantRepo.FindByResourceSubject(ctx, ref, subjectID)
			if err != nil {
				return err
			}
		}

		if !existing.Active {
			existing.Active = true
			existing.ValidFrom = now
		}
		existing.SetCapabilities(caps)
		existing.ValidUntil = validUntil
		existing.GrantedBy = granterID
		existing.GrantedAt = now
		if err := m.grantRepo.Update(ctx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		logger.Error("Assign: failed to assign grant",
			zap.String("resource", ref.String()), zap.Uint64("subjectID", subjectID), zap.Error(err))
		return nil, err
	}

	logger.Info("Grant assigned",
		zap.Uint64("grantID", result.ID),
		zap.String("resource", ref.String()),
		zap.Uint64("subjectID", subjectID),
		zap.Uint64("granterID", granterID))
	return result, nil
}

func (m *grantManager) Revoke(ctx context.Context, grantID uint64) (*models.Grant, error) {
	grant, unlock, err := m.lockGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !grant.Active {
		return grant, nil
	}
	grant.Active = false
	if err := m.grantRepo.Update(ctx, grant); err != nil {
		return nil, err
	}
	logger.Info("Grant revoked", zap.Uint64("grantID", grantID), zap.String("resource", grant.Resource().String()))
	return grant, nil
}

// Update 不改变 active，已撤销的授权更新后仍然无效
func (m *grantManager) Update(ctx context.Context, grantID uint64, caps models.Capabilities, validUntil *time.Time, updatedBy uint64) (*models.Grant, error) {
	if validUntil != nil && !validUntil.After(m.now()) {
		return nil, fmt.Errorf("%w: valid_until must be in the future", xerr.ErrInvalidParams)
	}
	grant, unlock, err := m.lockGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	grant.SetCapabilities(caps)
	grant.ValidUntil = validUntil
	grant.GrantedBy = updatedBy
	if err := m.grantRepo.Update(ctx, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// lockGrant 锁键由记录的资源和主体决定，所以先读一次取键，加锁后再读最新状态
func (m *grantManager) lockGrant(ctx context.Context, grantID uint64) (*models.Grant, func(), error) {
	grant, err := m.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := m.locker.Lock(ctx, cache.GrantLockKey(grant.Resource().String(), grant.SubjectID), m.lockTTL)
	if err != nil {
		return nil, nil, err
	}
	grant, err = m.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return grant, unlock, nil
}

func (m *grantManager) Get(ctx context.Context, grantID uint64) (*models.Grant, error) {
	return m.grantRepo.FindByID(ctx, grantID)
}

func (m *grantManager) ListByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error) {
	return m.grantRepo.ListByResource(ctx, ref)
}

func (m *grantManager) EffectiveByResource(ctx context.Context, ref models.ResourceRef) ([]models.Grant, error) {
	all, err := m.grantRepo.ListByResource(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := m.now()
	effective := make([]models.Grant, 0, len(all))
	for _, g := range all {
		if g.EffectiveAt(now) {
			effective = append(effective, g)
		}
	}
	return effective, nil
}

func (m *grantManager) ListBySubject(ctx context.Context, subjectID uint64) ([]models.Grant, error) {
	return m.grantRepo.ListBySubject(ctx, subjectID)
}

func (m *grantManager) ensureResource(ctx context.Context, ref models.ResourceRef) error {
	switch ref.Kind {
	case models.ResourceFolder:
		folder, err := m.folderRepo.FindByID(ctx, ref.ID)
		if err != nil {
			return err
		}
		if !folder.IsActive {
			return xerr.ErrDirectoryNotFound
		}
	case models.ResourceFile:
		file, err := m.fileRepo.FindByID(ctx, ref.ID)
		if err != nil {
			return err
		}
		if !file.IsActive() {
			return xerr.ErrFileNotFound
		}
	default:
		return fmt.Errorf("%w: unknown resource kind %q", xerr.ErrInvalidParams, ref.Kind)
	}
	return nil
}
