package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "user:1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				prev := atomic.LoadInt32(&maxInside)
				if n <= prev || atomic.CompareAndSwapInt32(&maxInside, prev, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.locks, "entries are released")
}

func TestLocalLocker_RespectsContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()
}

func TestRedisLocker_ContentionAndRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, testLogger(), time.Second, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "registration:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:registration:1"))

	_, err = locker.Lock(ctx, "registration:1")
	assert.ErrorIs(t, err, ErrStateLocked)

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:registration:1"))

	again, err := locker.Lock(ctx, "registration:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, testLogger(), time.Second, 10*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "delivery:5")
	require.NoError(t, err)

	require.NoError(t, mr.Set("lock:delivery:5", "someone-else"))
	unlock()

	assert.True(t, mr.Exists("lock:delivery:5"))
}
