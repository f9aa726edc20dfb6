package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁，多实例部署时使用
type RedisLocker struct {
	client    *redis.Client
	retryWait time.Duration
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, retryWait: 20 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("获取分布式锁失败: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-timer.C:
		}
	}

	return func() {
		// 调用方的 ctx 可能已取消，释放锁用独立的 ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logger.Warn("Failed to release redis lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
