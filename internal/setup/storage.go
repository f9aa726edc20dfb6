package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/storage"
	"go.uber.org/zap"
)

// InitStorage 按 storage.type 初始化对象存储并确保存储桶存在
func InitStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	store, err := storage.NewObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 %s 存储服务失败: %w", cfg.Storage.Type, err)
	}
	logger.Info("存储服务已选择并初始化", zap.String("type", cfg.Storage.Type))

	// 为外部调用使用带超时的上下文
	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(bucketCtx); err != nil {
		return nil, fmt.Errorf("检查或创建存储桶失败: %w", err)
	}
	logger.Info("存储桶已就绪", zap.String("bucketName", cfg.Storage.Bucket))
	return store, nil
}
