package cache

import (
	"context"
	"fmt"
	"time"
)

// 缓存通用接口
type Cache interface {
	// Set在缓存中设置一个值，并指定过期时间。
	// value应该是一个可以被JSON封送的结构体或指向结构体的指针。
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get从缓存中检索一个值，并将其解编组到目标接口。
	// key 不存在时返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error
}

// 已结束的导出任务不会再变化，可以缓存
func ExportJobKey(jobID uint64) string {
	return fmt.Sprintf("docspace:export:job:%d", jobID)
}

func GrantLockKey(resource string, subjectID uint64) string {
	return fmt.Sprintf("docspace:lock:grant:%s:%d", resource, subjectID)
}

func FileLockKey(fileID uint64) string {
	return fmt.Sprintf("docspace:lock:file:%d", fileID)
}
