package explorer

import (
	"context"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/repositories"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 100

// Auditor 记录文件访问历史，写入失败只记日志，不影响主流程
type Auditor struct {
	repo repositories.AccessHistoryRepository
	now  func() time.Time
}

func NewAuditor(repo repositories.AccessHistoryRepository) *Auditor {
	return &Auditor{repo: repo, now: time.Now}
}

func (a *Auditor) Record(ctx context.Context, fileID, userID uint64, action models.AccessAction, client ClientInfo, info string) {
	entry := &models.FileAccessHistory{
		FileID:         fileID,
		UserID:         userID,
		Action:         action,
		ActionAt:       a.now(),
		IPAddress:      client.IPAddress,
		DeviceInfo:     client.DeviceInfo,
		AdditionalInfo: info,
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		logger.Warn("Failed to record file access",
			zap.Uint64("fileID", fileID),
			zap.Uint64("userID", userID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (a *Auditor) History(ctx context.Context, fileID uint64, limit int) ([]models.FileAccessHistory, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return a.repo.ListByFile(ctx, fileID, limit)
}
