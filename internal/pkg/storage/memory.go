package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore 进程内对象存储，用于本地开发和测试
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject

	// FailGet/FailPut 非空时，对命中的 key 返回错误，用于模拟后端故障
	FailGet func(key string) error
	FailPut func(key string) error
}

var _ ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (PutObjectResult, error) {
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return PutObjectResult{}, storageErr("上传对象失败", key, err)
		}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return PutObjectResult{}, storageErr("读取上传内容失败", key, err)
	}
	sum := md5.Sum(data)

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()

	return PutObjectResult{Bucket: s.bucket, Key: key, Size: int64(len(data)), ETag: hex.EncodeToString(sum[:])}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (GetObjectResult, error) {
	if s.FailGet != nil {
		if err := s.FailGet(key); err != nil {
			return GetObjectResult{}, storageErr("读取对象失败", key, err)
		}
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return GetObjectResult{}, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return GetObjectResult{
		Reader:   io.NopCloser(bytes.NewReader(obj.data)),
		Size:     int64(len(obj.data)),
		MimeType: obj.contentType,
	}, nil
}

func (s *MemoryStore) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u := url.URL{
		Scheme:   "memory",
		Host:     s.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) EnsureBucket(ctx context.Context) error {
	return nil
}

// Keys 返回当前保存的所有 key
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
