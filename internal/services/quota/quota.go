package quota

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/metrics"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"go.uber.org/zap"
)

// Manager 维护租户空间的已用字节数
// 预留是单条条件更新，检查和扣减之间不会被其他写入插入
type Manager interface {
	// CheckAndReserve 超出配额时返回 ErrQuotaExceeded，已用量保持不变
	CheckAndReserve(ctx context.Context, spaceID uint64, bytes int64) error
	// ApplyDelta 加上有符号增量，结果不低于 0
	ApplyDelta(ctx context.Context, spaceID uint64, delta int64) error
	// Release 归还之前预留的字节，用于写入失败后的回滚
	Release(ctx context.Context, spaceID uint64, bytes int64) error
	Usage(ctx context.Context, spaceID uint64) (*Usage, error)
}

type Usage struct {
	SpaceID         uint64 `json:"space_id"`
	TotalQuotaBytes int64  `json:"total_quota_bytes"`
	UsedBytes       int64  `json:"used_bytes"`
	AvailableBytes  int64  `json:"available_bytes"`
}

type manager struct {
	spaceRepo repositories.TenantSpaceRepository
}

var _ Manager = (*manager)(nil)

func NewManager(spaceRepo repositories.TenantSpaceRepository) Manager {
	return &manager{spaceRepo: spaceRepo}
}

func (m *manager) CheckAndReserve(ctx context.Context, spaceID uint64, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: negative reservation %d", xerr.ErrInvalidParams, bytes)
	}
	if bytes == 0 {
		// 空文件也要求空间存在且有效
		return m.ensureActive(ctx, spaceID)
	}

	ok, err := m.spaceRepo.TryReserve(ctx, spaceID, bytes)
	if err != nil {
		return err
	}
	if ok {
		logger.Debug("Quota reserved", zap.Uint64("spaceID", spaceID), zap.Int64("bytes", bytes))
		return nil
	}

	// 条件更新未命中：空间不存在、已停用，或者确实超额
	if err := m.ensureActive(ctx, spaceID); err != nil {
		return err
	}
	metrics.QuotaRejections.Inc()
	logger.Warn("Quota exceeded", zap.Uint64("spaceID", spaceID), zap.Int64("bytes", bytes))
	return fmt.Errorf("%w: space %d cannot take %d more bytes", xerr.ErrQuotaExceeded, spaceID, bytes)
}

func (m *manager) ApplyDelta(ctx context.Context, spaceID uint64, delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := m.spaceRepo.AddUsed(ctx, spaceID, delta); err != nil {
		logger.Error("ApplyDelta: failed to update used bytes", zap.Uint64("spaceID", spaceID), zap.Int64("delta", delta), zap.Error(err))
		return err
	}
	logger.Debug("Quota delta applied", zap.Uint64("spaceID", spaceID), zap.Int64("delta", delta))
	return nil
}

func (m *manager) Release(ctx context.Context, spaceID uint64, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return m.ApplyDelta(ctx, spaceID, -bytes)
}

func (m *manager) Usage(ctx context.Context, spaceID uint64) (*Usage, error) {
	space, err := m.spaceRepo.FindByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return &Usage{
		SpaceID:         space.ID,
		TotalQuotaBytes: space.TotalQuotaBytes,
		UsedBytes:       space.UsedBytes,
		AvailableBytes:  space.AvailableBytes(),
	}, nil
}

func (m *manager) ensureActive(ctx context.Context, spaceID uint64) error {
	space, err := m.spaceRepo.FindByID(ctx, spaceID)
	if err != nil {
		return err
	}
	if !isUsable(space) {
		return xerr.ErrSpaceNotFound
	}
	return nil
}

func isUsable(space *models.TenantSpace) bool {
	return space != nil && space.IsActive
}
