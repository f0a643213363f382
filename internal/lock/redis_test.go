package lock

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

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLockerSerializesAcrossInstances(t *testing.T) {
	_, rdb := newRedis(t)
	// two lockers sharing one redis behave like two processes
	lockers := []*RedisLocker{
		NewRedisLocker(rdb, "test:", time.Minute),
		NewRedisLocker(rdb, "test:", time.Minute),
	}
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		total   int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l *RedisLocker) {
			defer wg.Done()
			release, err := l.Lock(ctx, "wallet:1:IRR")
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
			total++
			mu.Unlock()
			release()
		}(lockers[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 8, total)
}

func TestRedisLockerReleaseDeletesOwnKey(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "test:", time.Minute)

	release, err := l.Lock(context.Background(), "wallet:1:IRR")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:wallet:1:IRR"))
	assert.Equal(t, time.Minute, mr.TTL("test:wallet:1:IRR"))

	release()
	assert.False(t, mr.Exists("test:wallet:1:IRR"))
}

func TestRedisLockerReleaseWithForeignTokenIsNoop(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "test:", time.Minute)

	release, err := l.Lock(context.Background(), "wallet:1:IRR")
	require.NoError(t, err)

	// another owner took over the key
	require.NoError(t, mr.Set("test:wallet:1:IRR", "other-owner"))
	release()

	got, err := mr.Get("test:wallet:1:IRR")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestRedisLockerExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	mr, rdb := newRedis(t)
	first := NewRedisLocker(rdb, "test:", 100*time.Millisecond)
	second := NewRedisLocker(rdb, "test:", time.Minute)
	ctx := context.Background()

	staleRelease, err := first.Lock(ctx, "wallet:1:IRR")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)
	require.False(t, mr.Exists("test:wallet:1:IRR"))

	release, err := second.Lock(ctx, "wallet:1:IRR")
	require.NoError(t, err)

	staleRelease()
	assert.True(t, mr.Exists("test:wallet:1:IRR"))

	release()
	assert.False(t, mr.Exists("test:wallet:1:IRR"))
}

func TestRedisLockerTimesOutWhileHeld(t *testing.T) {
	_, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "test:", time.Minute)

	release, err := l.Lock(context.Background(), "wallet:1:IRR")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = l.Lock(ctx, "wallet:1:IRR")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	other, err := l.Lock(context.Background(), "wallet:1:USD")
	require.NoError(t, err)
	other()
}

func TestChainWithRedisReleasesOnFailure(t *testing.T) {
	mr, rdb := newRedis(t)
	mem := NewMemoryLocker()
	chain := Chain{mem, NewRedisLocker(rdb, "test:", time.Minute)}

	require.NoError(t, mr.Set("test:wallet:1:IRR", "other-owner"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := chain.Lock(ctx, "wallet:1:IRR")
	require.ErrorIs(t, err, ErrLockTimeout)

	// the in-process lock taken first was handed back
	release, err := mem.Lock(context.Background(), "wallet:1:IRR")
	require.NoError(t, err)
	release()
}
