package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

// AliyunOSSStore OSS SDK 不接受 context，调用会阻塞到 SDK 自身超时
type AliyunOSSStore struct {
	client *oss.Client
	bucket string
}

var _ ObjectStore = (*AliyunOSSStore)(nil)

// NewAliyunOSSStore Endpoint 应该包含 http:// 或 https:// 前缀
func NewAliyunOSSStore(cfg *config.AliyunOSSConfig, bucket string) (*AliyunOSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		logger.Error("初始化阿里云OSS客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化阿里云OSS客户端: %w", err)
	}
	logger.Info("阿里云OSS客户端初始化成功", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", bucket))
	return &AliyunOSSStore{client: client, bucket: bucket}, nil
}

func (s *AliyunOSSStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutObjectResult, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return PutObjectResult{}, storageErr("获取OSS存储桶失败", key, err)
	}

	var respHeader http.Header
	err = bucket.PutObject(key, reader, oss.ContentType(contentType), oss.GetResponseHeader(&respHeader))
	if err != nil {
		return PutObjectResult{}, storageErr("阿里云OSS上传文件失败", key, err)
	}

	return PutObjectResult{
		Bucket: s.bucket,
		Key:    key,
		Size:   size, // PutObject 不返回大小，沿用调用方给出的值
		ETag:   respHeader.Get(oss.HTTPHeaderEtag),
	}, nil
}

func (s *AliyunOSSStore) Get(ctx context.Context, key string) (GetObjectResult, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return GetObjectResult{}, storageErr("获取OSS存储桶失败", key, err)
	}

	props, err := bucket.GetObjectDetailedMeta(key)
	if err != nil {
		if isOSSNotFound(err) {
			return GetObjectResult{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return GetObjectResult{}, storageErr("获取OSS对象元数据失败", key, err)
	}

	reader, err := bucket.GetObject(key)
	if err != nil {
		return GetObjectResult{}, storageErr("阿里云OSS获取文件失败", key, err)
	}

	size, _ := strconv.ParseInt(props.Get(oss.HTTPHeaderContentLength), 10, 64)
	return GetObjectResult{
		Reader:   reader,
		Size:     size,
		MimeType: props.Get(oss.HTTPHeaderContentType),
	}, nil
}

func (s *AliyunOSSStore) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return "", storageErr("获取OSS存储桶失败", key, err)
	}
	signedURL, err := bucket.SignURL(key, oss.HTTPGet, int64(ttl.Seconds()))
	if err != nil {
		return "", storageErr("生成阿里云OSS预签名URL失败", key, err)
	}
	return signedURL, nil
}

func (s *AliyunOSSStore) Delete(ctx context.Context, key string) error {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return storageErr("获取OSS存储桶失败", key, err)
	}
	if err := bucket.DeleteObject(key); err != nil {
		return storageErr("阿里云OSS删除文件失败", key, err)
	}
	return nil
}

func (s *AliyunOSSStore) Exists(ctx context.Context, key string) (bool, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return false, storageErr("获取OSS存储桶失败", key, err)
	}
	found, err := bucket.IsObjectExist(key)
	if err != nil {
		return false, storageErr("阿里云OSS检查对象失败", key, err)
	}
	return found, nil
}

func (s *AliyunOSSStore) EnsureBucket(ctx context.Context) error {
	found, err := s.client.IsBucketExist(s.bucket)
	if err != nil {
		return fmt.Errorf("检查阿里云OSS存储桶存在性失败: %w", err)
	}
	if found {
		return nil
	}
	if err := s.client.CreateBucket(s.bucket); err != nil {
		var ossErr oss.ServiceError
		if errors.As(err, &ossErr) && (ossErr.Code == "BucketAlreadyExists" || ossErr.Code == "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("创建阿里云OSS存储桶失败: %w", err)
	}
	logger.Info("阿里云OSS存储桶创建成功", zap.String("bucket", s.bucket))
	return nil
}

func isOSSNotFound(err error) bool {
	var ossErr oss.ServiceError
	return errors.As(err, &ossErr) && ossErr.StatusCode == http.StatusNotFound
}
