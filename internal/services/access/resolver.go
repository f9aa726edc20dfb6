package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/metrics"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"go.uber.org/zap"
)

const DefaultMaxDepth = 64

// Resolver 判定主体对目录或文件是否拥有某项能力
// 只有授予没有拒绝：结果是资源自身及所有祖先目录有效授权的并集
type Resolver interface {
	CanDo(ctx context.Context, capability models.Capability, ref models.ResourceRef, subjectID uint64) (bool, error)
	// Capabilities 一次遍历返回四项能力的判定结果
	Capabilities(ctx context.Context, ref models.ResourceRef, subjectID uint64) (models.Capabilities, error)
	// Require 判定失败时返回 ErrPermissionDenied
	Require(ctx context.Context, capability models.Capability, ref models.ResourceRef, subjectID uint64) error
}

type resolver struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
	maxDepth   int
	now        func() time.Time
}

var _ Resolver = (*resolver)(nil)

func NewResolver(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	grantRepo repositories.GrantRepository,
	maxDepth int,
) Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &resolver{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		grantRepo:  grantRepo,
		maxDepth:   maxDepth,
		now:        time.Now,
	}
}

func (r *resolver) CanDo(ctx context.Context, capability models.Capability, ref models.ResourceRef, subjectID uint64) (bool, error) {
	var allowed bool
	err := r.walk(ctx, ref, subjectID, func(c models.Capabilities) bool {
		allowed = c.Has(capability)
		return allowed
	})
	if err != nil {
		return false, err
	}

	metrics.AccessChecks.WithLabelValues(string(capability), metrics.Decision(allowed)).Inc()
	logger.Debug("Access decision",
		zap.String("capability", string(capability)),
		zap.String("resource", ref.String()),
		zap.Uint64("subjectID", subjectID),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

func (r *resolver) Capabilities(ctx context.Context, ref models.ResourceRef, subjectID uint64) (models.Capabilities, error) {
	var acc models.Capabilities
	full := models.FullCapabilities()
	err := r.walk(ctx, ref, subjectID, func(c models.Capabilities) bool {
		acc.Read = acc.Read || c.Read
		acc.Write = acc.Write || c.Write
		acc.Delete = acc.Delete || c.Delete
		acc.Download = acc.Download || c.Download
		return acc == full
	})
	if err != nil {
		return models.Capabilities{}, err
	}
	return acc, nil
}

func (r *resolver) Require(ctx context.Context, capability models.Capability, ref models.ResourceRef, subjectID uint64) error {
	ok, err := r.CanDo(ctx, capability, ref, subjectID)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("Permission denied",
			zap.String("capability", string(capability)),
			zap.String("resource", ref.String()),
			zap.Uint64("subjectID", subjectID))
		return fmt.Errorf("%w: %s on %s", xerr.ErrPermissionDenied, capability, ref)
	}
	return nil
}

// walk 依次把资源自身、所在目录及每一级祖先目录的有效授权交给 visit，visit 返回 true 时停止
// 文件上值为 false 的能力位不构成拒绝，继续向上查找
func (r *resolver) walk(ctx context.Context, ref models.ResourceRef, subjectID uint64, visit func(models.Capabilities) bool) error {
	now := r.now()

	var folderID uint64
	switch ref.Kind {
	case models.ResourceFile:
		file, err := r.fileRepo.FindByID(ctx, ref.ID)
		if err != nil {
			return err
		}
		caps, err := r.effective(ctx, ref, subjectID, now)
		if err != nil {
			return err
		}
		if visit(caps) {
			return nil
		}
		folderID = file.FolderID
	case models.ResourceFolder:
		folderID = ref.ID
	default:
		return fmt.Errorf("%w: unknown resource kind %q", xerr.ErrInvalidParams, ref.Kind)
	}

	visited := make(map[uint64]struct{}, 8)
	var spaceID uint64
	for depth := 0; ; depth++ {
		if depth >= r.maxDepth {
			logger.Error("Folder chain exceeds max depth", zap.Uint64("folderID", folderID), zap.Int("maxDepth", r.maxDepth))
			return fmt.Errorf("%w: folder chain deeper than %d", xerr.ErrInvalidHierarchy, r.maxDepth)
		}
		if _, seen := visited[folderID]; seen {
			logger.Error("Cycle detected in folder chain", zap.Uint64("folderID", folderID), zap.String("start", ref.String()))
			return fmt.Errorf("%w: cycle at folder %d", xerr.ErrInvalidHierarchy, folderID)
		}
		visited[folderID] = struct{}{}

		// 中途缺失的目录直接报错，不按拒绝处理
		folder, err := r.folderRepo.FindByID(ctx, folderID)
		if err != nil {
			return err
		}
		if depth == 0 {
			spaceID = folder.SpaceID
		} else if folder.SpaceID != spaceID {
			logger.Error("Folder parent belongs to another space",
				zap.Uint64("folderID", folder.ID), zap.Uint64("spaceID", folder.SpaceID), zap.Uint64("expectedSpaceID", spaceID))
			return fmt.Errorf("%w: folder %d crosses tenant space", xerr.ErrInvalidHierarchy, folder.ID)
		}

		caps, err := r.effective(ctx, models.FolderRef(folder.ID), subjectID, now)
		if err != nil {
			return err
		}
		if visit(caps) {
			return nil
		}
		if folder.ParentID == nil {
			return nil
		}
		folderID = *folder.ParentID
	}
}

// effective 返回 (资源, 主体) 当前生效的授权能力，没有时返回全 false
func (r *resolver) effective(ctx context.Context, ref models.ResourceRef, subjectID uint64, now time.Time) (models.Capabilities, error) {
	grant, err := r.grantRepo.FindActive(ctx, ref, subjectID, now)
	if err != nil {
		if errors.Is(err, xerr.ErrGrantNotFound) {
			return models.Capabilities{}, nil
		}
		return models.Capabilities{}, err
	}
	if !grant.EffectiveAt(now) {
		return models.Capabilities{}, nil
	}
	return grant.Capabilities(), nil
}
