package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "doc_1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal()
	exerciseMutualExclusion(t, l)
	require.Zero(t, l.Len())
}

func TestLocalIndependentKeysAndCancel(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockB, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA()
	unlockB()
	require.Zero(t, l.Len())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisMutualExclusion(t *testing.T) {
	mr, rc := newRedis(t)
	exerciseMutualExclusion(t, NewRedis(rc, "lock:", time.Second))
	require.False(t, mr.Exists("lock:doc_1"))
}

func TestRedisTimeoutAndStaleRelease(t *testing.T) {
	mr, rc := newRedis(t)
	l := NewRedis(rc, "lock:", time.Second)

	unlock, err := l.Lock(context.Background(), "doc_1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "doc_1")
	require.ErrorIs(t, err, ErrLockTimeout)

	// lease expires and another holder takes over; our release must not drop it
	mr.FastForward(2 * time.Second)
	unlock2, err := l.Lock(context.Background(), "doc_1")
	require.NoError(t, err)
	unlock()
	require.True(t, mr.Exists("lock:doc_1"))
	unlock2()
	require.False(t, mr.Exists("lock:doc_1"))
}
