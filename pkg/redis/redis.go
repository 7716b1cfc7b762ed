// Package redis wraps go-redis with lazy reconnects and a redsync based lock
// manager. It backs the durable idempotency ledger.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/backoff"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	reconnectBackoffBase = 500 * time.Millisecond
	reconnectBackoffCap  = 30 * time.Second
	maxPoolSize          = 1000
)

var (
	ErrNilClient     = errors.New("redis client is nil")
	ErrInvalidConfig = errors.New("invalid redis config")
	// ErrReconnectRateLimited is returned by GetClient while a failed
	// reconnect is still inside its backoff window.
	ErrReconnectRateLimited = errors.New("redis reconnect rate limited")
)

// Config defines how to reach Redis. More than one address selects cluster mode.
type Config struct {
	Addresses []string
	Password  string
	DB        int
	Options   ConnectionOptions
	Logger    log.Logger
}

// ConnectionOptions configures timeouts and pooling. Zero values take defaults.
type ConnectionOptions struct {
	PoolSize     int
	MinIdleConns int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	PoolTimeout  time.Duration
	MaxRetries   int
}

// Client holds a redis.UniversalClient and reconnects on demand.
type Client struct {
	mu     sync.RWMutex
	cfg    Config
	logger log.Logger
	client redis.UniversalClient

	lastReconnectAttempt time.Time
	reconnectAttempts    int
}

// New validates cfg, connects and pings Redis.
func New(ctx context.Context, cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: normalized, logger: normalized.Logger}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect (re)establishes the connection.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	ctx, span := otel.Tracer("redis").Start(ctx, "redis.connect")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", "redis"))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		opentelemetry.HandleSpanError(span, "Failed to connect to redis", err)

		return err
	}

	return nil
}

// GetClient returns the connected client, reconnecting when needed. Failed
// reconnects are spaced with exponential backoff.
func (c *Client) GetClient(ctx context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	if c.client != nil {
		client := c.client
		c.mu.RUnlock()

		return client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	if c.reconnectAttempts > 0 {
		delay := backoff.Capped(reconnectBackoffBase, reconnectBackoffCap, c.reconnectAttempts-1)
		if elapsed := time.Since(c.lastReconnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("%w: next attempt in %s", ErrReconnectRateLimited, delay-elapsed)
		}
	}

	c.lastReconnectAttempt = time.Now()

	ctx, span := otel.Tracer("redis").Start(ctx, "redis.reconnect")
	defer span.End()

	if err := c.connectLocked(ctx); err != nil {
		c.reconnectAttempts++

		opentelemetry.HandleSpanError(span, "Failed to reconnect redis", err)

		return nil, err
	}

	c.reconnectAttempts = 0

	return c.client, nil
}

// Ping checks connectivity. It is used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.GetClient(ctx)
	if err != nil {
		return err
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

// Close closes the underlying client. It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil

	return err
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Log(ctx, log.LevelWarn, "close before connect failed", log.Err(err))
		}

		c.client = nil
	}

	o := c.cfg.Options

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        c.cfg.Addresses,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		DialTimeout:  o.DialTimeout,
		PoolTimeout:  o.PoolTimeout,
		MaxRetries:   o.MaxRetries,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		c.logger.Log(ctx, log.LevelError, "redis ping failed", log.Err(err))

		return fmt.Errorf("redis connect: ping: %w", err)
	}

	c.client = rdb

	c.logger.Log(ctx, log.LevelInfo, "connected to redis", log.Int("addresses", len(c.cfg.Addresses)), log.Int("db", c.cfg.DB))

	return nil
}

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	addrs := make([]string, 0, len(cfg.Addresses))

	for _, a := range cfg.Addresses {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}

	if len(addrs) == 0 {
		return Config{}, fmt.Errorf("%w: at least one address is required", ErrInvalidConfig)
	}

	if len(addrs) > 1 && cfg.DB != 0 {
		return Config{}, fmt.Errorf("%w: cluster mode supports only DB 0", ErrInvalidConfig)
	}

	cfg.Addresses = addrs

	o := &cfg.Options
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}

	if o.PoolSize > maxPoolSize {
		o.PoolSize = maxPoolSize
	}

	if o.ReadTimeout == 0 {
		o.ReadTimeout = 3 * time.Second
	}

	if o.WriteTimeout == 0 {
		o.WriteTimeout = 3 * time.Second
	}

	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}

	if o.PoolTimeout == 0 {
		o.PoolTimeout = 2 * time.Second
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}

	return cfg, nil
}
