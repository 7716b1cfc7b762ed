//go:build unit

package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockManager(t *testing.T) (*RedisLockManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), newTestConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	lm, err := NewRedisLockManager(client)
	require.NoError(t, err)

	return lm, mr
}

func TestRedisLockManager_LockAndUnlock(t *testing.T) {
	t.Parallel()

	lm, mr := newTestLockManager(t)

	handle, err := lm.Lock(context.Background(), "lock:a", DefaultLockOptions())
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:a"))

	require.NoError(t, handle.Unlock(context.Background()))
	assert.False(t, mr.Exists("lock:a"))
}

func TestRedisLockManager_LockBusy(t *testing.T) {
	t.Parallel()

	lm, _ := newTestLockManager(t)

	first, err := lm.Lock(context.Background(), "lock:b", DefaultLockOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Unlock(context.Background()) })

	opts := LockOptions{Expiry: time.Second, Tries: 2, RetryDelay: time.Millisecond, MaxRetryDelay: 2 * time.Millisecond}

	_, err = lm.Lock(context.Background(), "lock:b", opts)
	assert.ErrorIs(t, err, ErrLockBusy)
}

func TestRedisLockManager_LockWaitsForRelease(t *testing.T) {
	t.Parallel()

	lm, _ := newTestLockManager(t)

	first, err := lm.Lock(context.Background(), "lock:c", DefaultLockOptions())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = first.Unlock(context.Background())
	}()

	opts := LockOptions{Expiry: time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 10 * time.Millisecond}

	second, err := lm.Lock(context.Background(), "lock:c", opts)
	require.NoError(t, err)
	assert.NoError(t, second.Unlock(context.Background()))
}

func TestRedisLockManager_LockContextDeadline(t *testing.T) {
	t.Parallel()

	lm, _ := newTestLockManager(t)

	first, err := lm.Lock(context.Background(), "lock:d", DefaultLockOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Unlock(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	opts := LockOptions{Expiry: time.Second, Tries: maxLockTries, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 10 * time.Millisecond}

	_, err = lm.Lock(ctx, "lock:d", opts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLockManager_UnlockExpired(t *testing.T) {
	t.Parallel()

	lm, mr := newTestLockManager(t)

	handle, err := lm.Lock(context.Background(), "lock:e", DefaultLockOptions())
	require.NoError(t, err)

	mr.Del("lock:e")

	assert.Error(t, handle.Unlock(context.Background()))
}

func TestRedisLockManager_InvalidInput(t *testing.T) {
	t.Parallel()

	lm, _ := newTestLockManager(t)

	tests := []struct {
		name string
		key  string
		opts LockOptions
		err  error
	}{
		{name: "empty key", key: " ", opts: DefaultLockOptions(), err: ErrEmptyLockKey},
		{name: "zero expiry", key: "k", opts: LockOptions{Tries: 1}, err: ErrLockExpiryInvalid},
		{name: "zero tries", key: "k", opts: LockOptions{Expiry: time.Second}, err: ErrLockTriesInvalid},
		{name: "too many tries", key: "k", opts: LockOptions{Expiry: time.Second, Tries: maxLockTries + 1}, err: ErrLockTriesExceeded},
		{name: "negative delay", key: "k", opts: LockOptions{Expiry: time.Second, Tries: 1, RetryDelay: -1}, err: ErrLockRetryDelayNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := lm.Lock(context.Background(), tt.key, tt.opts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRedisLockManager_Nil(t *testing.T) {
	t.Parallel()

	var lm *RedisLockManager

	_, err := lm.Lock(context.Background(), "k", DefaultLockOptions())
	assert.ErrorIs(t, err, ErrNilLockManager)

	_, err = NewRedisLockManager(nil)
	assert.ErrorIs(t, err, ErrNilClient)

	var h *lockHandle
	assert.ErrorIs(t, h.Unlock(context.Background()), ErrNilLockHandle)
}

func TestSafeLockKeyForLogs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"a\nb"`, safeLockKeyForLogs("a\nb"))

	long := safeLockKeyForLogs(strings.Repeat("x", 300))
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
}
