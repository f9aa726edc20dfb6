package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOStore struct {
	client *minio.Client
	bucket string
}

var _ ObjectStore = (*MinIOStore)(nil)

// NewMinIOStore 创建并返回一个 MinIOStore 实例
func NewMinIOStore(cfg *config.MinIOConfig, bucket string) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Error("初始化 MinIO 客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化 MinIO 客户端: %w", err)
	}

	logger.Info("MinIO 客户端初始化成功", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", bucket))
	return &MinIOStore{client: client, bucket: bucket}, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutObjectResult, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return PutObjectResult{}, storageErr("MinIO 上传文件失败", key, err)
	}
	return PutObjectResult{
		Bucket: info.Bucket,
		Key:    info.Key,
		Size:   info.Size,
		ETag:   info.ETag,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (GetObjectResult, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return GetObjectResult{}, storageErr("MinIO 获取文件失败", key, err)
	}
	// GetObject 是惰性的，Stat 时才会真正发出请求
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return GetObjectResult{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return GetObjectResult{}, storageErr("MinIO 获取对象信息失败", key, err)
	}

	return GetObjectResult{
		Reader:   obj,
		Size:     stat.Size,
		MimeType: stat.ContentType,
	}, nil
}

func (s *MinIOStore) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.Presign(ctx, http.MethodGet, s.bucket, key, ttl, nil)
	if err != nil {
		return "", storageErr("生成 MinIO 预签名URL失败", key, err)
	}
	return u.String(), nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return storageErr("MinIO 删除文件失败", key, err)
	}
	return nil
}

func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, storageErr("MinIO 检查对象失败", key, err)
	}
	return true, nil
}

func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶存在性失败: %w", err)
	}
	if found {
		logger.Info("MinIO 存储桶已存在", zap.String("bucket", s.bucket))
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
	}
	logger.Info("MinIO 存储桶创建成功", zap.String("bucket", s.bucket))
	return nil
}
