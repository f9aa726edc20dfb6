package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "grant:FOLDER:1:7", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestKeyedMutex_Exclusive(t *testing.T) {
	exerciseMutualExclusion(t, NewKeyedMutex())
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k", 0)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_DifferentKeys(t *testing.T) {
	m := NewKeyedMutex()
	u1, err := m.Lock(context.Background(), "a", 0)
	require.NoError(t, err)
	u2, err := m.Lock(context.Background(), "b", 0)
	require.NoError(t, err)
	u1()
	u2()
	assert.Empty(t, m.locks)
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedisLocker(client)
	l.retryWait = time.Millisecond
	return l, mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	l, mr := newTestRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// 锁过期后被别人拿走，原持有者的 unlock 不能删掉新锁
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "other"))
	unlock()

	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "other", v)
}

func TestRedisLocker_Timeout(t *testing.T) {
	l, _ := newTestRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockTimeout)
}
