//go:build unit

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	libRedis "github.com/LerianStudio/beneficiary-pay/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLedger(t *testing.T, opts RedisOptions) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := libRedis.New(context.Background(), libRedis.Config{Addresses: []string{mr.Addr()}, Logger: log.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locks, err := libRedis.NewRedisLockManager(client)
	require.NoError(t, err)

	l, err := NewRedisLedger(client, locks, opts)
	require.NoError(t, err)

	return l, mr
}

func TestNewRedisLedger_NilDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewRedisLedger(nil, nil, RedisOptions{})
	assert.ErrorIs(t, err, libRedis.ErrNilClient)

	mr := miniredis.RunT(t)
	client, err := libRedis.New(context.Background(), libRedis.Config{Addresses: []string{mr.Addr()}})
	require.NoError(t, err)

	_, err = NewRedisLedger(client, nil, RedisOptions{})
	assert.ErrorIs(t, err, libRedis.ErrNilLockManager)
}

func TestRedisLedger_StoreAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{Options: Options{TTL: time.Hour}, KeyPrefix: "svc"})

	_, ok, err := l.Lookup(ctx, "uuid-123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Store(ctx, "uuid-123", []byte(`{"paymentId":"PAY987"}`)))

	got, ok, err := l.Lookup(ctx, "uuid-123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"paymentId":"PAY987"}`, string(got))

	assert.True(t, mr.Exists("svc:idempotency:uuid-123"))
	assert.Equal(t, time.Hour, mr.TTL("svc:idempotency:uuid-123"))

	raw, err := mr.Get("svc:idempotency:uuid-123")
	require.NoError(t, err)
	assert.Contains(t, raw, `"createdAt"`)
}

func TestRedisLedger_FirstWriteWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, _ := newTestRedisLedger(t, RedisOptions{})

	require.NoError(t, l.Store(ctx, "k", []byte(`"first"`)))
	require.NoError(t, l.Store(ctx, "k", []byte(`"second"`)))

	got, _, err := l.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(got))
}

func TestRedisLedger_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{Options: Options{TTL: time.Minute}})

	require.NoError(t, l.Store(ctx, "k", []byte(`1`)))
	mr.FastForward(2 * time.Minute)

	_, ok, err := l.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLedger_ZeroTTLKeepsEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{})

	require.NoError(t, l.Store(ctx, "k", []byte(`1`)))
	assert.Equal(t, time.Duration(0), mr.TTL(DefaultKeyPrefix+":idempotency:k"))
}

func TestRedisLedger_BlankKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{})

	require.NoError(t, l.Store(ctx, " ", []byte(`1`)))
	assert.Empty(t, mr.Keys())

	_, ok, err := l.Lookup(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Claim(ctx, "")
	assert.ErrorIs(t, err, ErrBlankKey)
}

func TestRedisLedger_CorruptEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{})

	require.NoError(t, mr.Set(DefaultKeyPrefix+":idempotency:k", "not-json"))

	_, _, err := l.Lookup(ctx, "k")
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestRedisLedger_StoreRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	l, _ := newTestRedisLedger(t, RedisOptions{})

	err := l.Store(context.Background(), "k", []byte("{broken"))
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestRedisLedger_ClaimAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, mr := newTestRedisLedger(t, RedisOptions{Options: Options{ClaimTimeout: 50 * time.Millisecond}, KeyPrefix: "svc"})

	release, err := l.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, mr.Exists("svc:lock:k"))

	_, err = l.Claim(ctx, "k")
	assert.ErrorIs(t, err, ErrClaimTimeout)

	release(ctx)
	release(ctx)
	assert.False(t, mr.Exists("svc:lock:k"))

	again, err := l.Claim(ctx, "k")
	require.NoError(t, err)
	again(ctx)
}

func TestRedisLedger_ClaimCallerCancelled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, _ := newTestRedisLedger(t, RedisOptions{Options: Options{ClaimTimeout: time.Minute}, KeyPrefix: "svc"})

	release, err := l.Claim(ctx, "k")
	require.NoError(t, err)
	defer release(ctx)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = l.Claim(cancelled, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrClaimTimeout)
}

type failingProvider struct{}

func (failingProvider) GetClient(context.Context) (redis.UniversalClient, error) {
	return nil, errors.New("redis down")
}

func TestRedisLedger_ClientUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, _ := newTestRedisLedger(t, RedisOptions{})
	l.client = failingProvider{}

	_, _, err := l.Lookup(ctx, "k")
	assert.ErrorContains(t, err, "redis down")
	assert.ErrorContains(t, l.Store(ctx, "k", []byte(`1`)), "redis down")
}
