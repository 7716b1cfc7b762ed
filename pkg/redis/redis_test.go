//go:build unit

package redis

import (
	"context"
	"testing"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(addr string) Config {
	return Config{Addresses: []string{addr}, Logger: log.NewNop()}
}

func TestClient_NewAndGetClient(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), newTestConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	rdb, err := client.GetClient(context.Background())
	require.NoError(t, err)

	require.NoError(t, rdb.Set(context.Background(), "test:key", "value", 0).Err())
	value, err := rdb.Get(context.Background(), "test:key").Result()
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_New_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		errText string
	}{
		{name: "no addresses", cfg: Config{}, errText: "at least one address"},
		{name: "blank address", cfg: Config{Addresses: []string{"  "}}, errText: "at least one address"},
		{name: "cluster with db", cfg: Config{Addresses: []string{"a:1", "b:2"}, DB: 3}, errText: "only DB 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(context.Background(), tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestClient_New_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), newTestConfig(addr))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestClient_GetClient_ReconnectsAfterClose(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), newTestConfig(mr.Addr()))
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	rdb, err := client.GetClient(context.Background())
	require.NoError(t, err)
	assert.NoError(t, rdb.Ping(context.Background()).Err())
}

func TestClient_GetClient_RateLimitsFailedReconnects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), newTestConfig(mr.Addr()))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	mr.Close()

	_, err = client.GetClient(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReconnectRateLimited)

	_, err = client.GetClient(context.Background())
	assert.ErrorIs(t, err, ErrReconnectRateLimited)
}

func TestClient_NilReceiver(t *testing.T) {
	t.Parallel()

	var c *Client

	_, err := c.GetClient(context.Background())
	assert.ErrorIs(t, err, ErrNilClient)
	assert.ErrorIs(t, c.Close(), ErrNilClient)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrNilClient)
}

func TestNormalizeConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := normalizeConfig(Config{Addresses: []string{" localhost:6379 "}, Options: ConnectionOptions{PoolSize: 5000}})
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:6379"}, cfg.Addresses)
	assert.Equal(t, maxPoolSize, cfg.Options.PoolSize)
	assert.NotZero(t, cfg.Options.ReadTimeout)
	assert.NotZero(t, cfg.Options.DialTimeout)
	assert.NotNil(t, cfg.Logger)
}
