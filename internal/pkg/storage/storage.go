package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/xerr"
)

// ErrObjectNotFound 对象不存在，包裹 xerr.ErrStorageError
var ErrObjectNotFound = fmt.Errorf("对象不存在: %w", xerr.ErrStorageError)

// ObjectStore 定义了对象存储后端的通用操作，存储桶在构造时确定
type ObjectStore interface {
	// 上传对象，返回存储对象的信息
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutObjectResult, error)
	// 下载对象，调用方负责关闭 Reader
	Get(ctx context.Context, key string) (GetObjectResult, error)
	// 生成带有效期的下载地址
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// 存储桶不存在时创建
	EnsureBucket(ctx context.Context) error
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string // 对象哈希值
}

type GetObjectResult struct {
	Reader   io.ReadCloser // 文件内容读取器，需要在使用后关闭
	Size     int64
	MimeType string
}

// NewObjectStore 按 storage.type 构造存储后端
func NewObjectStore(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStore(&cfg.MinIO, cfg.Storage.Bucket)
	case "aliyun_oss":
		return NewAliyunOSSStore(&cfg.AliyunOSS, cfg.Storage.Bucket)
	case "s3":
		return NewS3Store(ctx, &cfg.S3, cfg.Storage.Bucket)
	case "memory":
		return NewMemoryStore(cfg.Storage.Bucket), nil
	default:
		return nil, fmt.Errorf("未知的存储服务类型: %s", cfg.Storage.Type)
	}
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("%s %s: %w: %v", op, key, xerr.ErrStorageError, err)
}
