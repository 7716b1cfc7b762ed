package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/backoff"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

const maxLockTries = 10000

var (
	ErrNilLockHandle          = errors.New("lock handle is nil or not initialized")
	ErrLockNotHeld            = errors.New("lock was not held or already expired")
	ErrNilLockManager         = errors.New("lock manager is nil")
	ErrEmptyLockKey           = errors.New("lock key cannot be empty")
	ErrLockExpiryInvalid      = errors.New("lock expiry must be greater than 0")
	ErrLockTriesInvalid       = errors.New("lock tries must be at least 1")
	ErrLockTriesExceeded      = errors.New("lock tries exceeds maximum")
	ErrLockRetryDelayNegative = errors.New("lock retry delay cannot be negative")
	// ErrLockBusy is returned when every acquisition attempt found the lock taken.
	ErrLockBusy = errors.New("lock is held by another owner")
)

// LockHandle is an acquired lock.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

// LockManager acquires distributed locks.
type LockManager interface {
	Lock(ctx context.Context, lockKey string, opts LockOptions) (LockHandle, error)
}

var _ LockManager = (*RedisLockManager)(nil)

// LockOptions configures acquisition. Attempts stop at Tries or when ctx
// ends, whichever comes first. The delay between attempts grows
// exponentially from RetryDelay up to MaxRetryDelay, with full jitter.
type LockOptions struct {
	Expiry        time.Duration
	Tries         int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:        10 * time.Second,
		Tries:         3,
		RetryDelay:    50 * time.Millisecond,
		MaxRetryDelay: 500 * time.Millisecond,
	}
}

// RedisLockManager implements LockManager with redsync.
type RedisLockManager struct {
	redsync *redsync.Redsync
}

// clientPool resolves the current client on every Get so the pool survives reconnects.
type clientPool struct {
	conn *Client
}

func (p *clientPool) Get(ctx context.Context) (redsyncredis.Conn, error) {
	rdb, err := p.conn.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client for lock pool: %w", err)
	}

	return goredis.NewPool(rdb).Get(ctx)
}

type lockHandle struct {
	mutex  *redsync.Mutex
	logger log.Logger
}

func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.mutex == nil {
		return ErrNilLockHandle
	}

	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		h.logger.Log(ctx, log.LevelError, "failed to release lock", log.Err(err))
		return fmt.Errorf("distributed lock: unlock: %w", err)
	}

	if !ok {
		h.logger.Log(ctx, log.LevelWarn, "lock was not held or already expired")
		return ErrLockNotHeld
	}

	return nil
}

func NewRedisLockManager(conn *Client) (*RedisLockManager, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	if _, err := conn.GetClient(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to get redis client: %w", err)
	}

	return &RedisLockManager{redsync: redsync.New(&clientPool{conn: conn})}, nil
}

// Lock acquires lockKey. Contention that outlasts every attempt returns
// ErrLockBusy; a context that ends while waiting returns its error.
func (dl *RedisLockManager) Lock(ctx context.Context, lockKey string, opts LockOptions) (LockHandle, error) {
	if dl == nil || dl.redsync == nil {
		return nil, ErrNilLockManager
	}

	if strings.TrimSpace(lockKey) == "" {
		return nil, ErrEmptyLockKey
	}

	if err := validateLockOptions(opts); err != nil {
		return nil, err
	}

	logger, tracer, _ := commons.NewTrackingFromContext(ctx)
	safeLockKey := safeLockKeyForLogs(lockKey)

	ctx, span := tracer.Start(ctx, "redis.lock.acquire")
	defer span.End()

	mutex := dl.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(opts.Expiry),
		redsync.WithTries(opts.Tries),
		redsync.WithRetryDelayFunc(func(tries int) time.Duration {
			return backoff.ExponentialWithJitter(opts.RetryDelay, opts.MaxRetryDelay, tries)
		}),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", safeLockKey, ctxErr)
		}

		if isLockContention(err) {
			logger.Log(ctx, log.LevelDebug, "lock still held after all attempts", log.String("lock_key", safeLockKey))
			return nil, fmt.Errorf("acquire lock %s: %w", safeLockKey, ErrLockBusy)
		}

		opentelemetry.HandleSpanError(span, "Failed to acquire lock", err)

		return nil, fmt.Errorf("acquire lock %s: %w", safeLockKey, err)
	}

	logger.Log(ctx, log.LevelDebug, "lock acquired", log.String("lock_key", safeLockKey))

	return &lockHandle{mutex: mutex, logger: logger}, nil
}

func isLockContention(err error) bool {
	var taken *redsync.ErrTaken

	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		strings.Contains(err.Error(), "lock already taken")
}

func validateLockOptions(opts LockOptions) error {
	if opts.Expiry <= 0 {
		return ErrLockExpiryInvalid
	}

	if opts.Tries < 1 {
		return ErrLockTriesInvalid
	}

	if opts.Tries > maxLockTries {
		return ErrLockTriesExceeded
	}

	if opts.RetryDelay < 0 || opts.MaxRetryDelay < 0 {
		return ErrLockRetryDelayNegative
	}

	return nil
}

func safeLockKeyForLogs(lockKey string) string {
	const maxLockKeyLogLength = 128

	safeLockKey := strconv.QuoteToASCII(lockKey)
	if len(safeLockKey) <= maxLockKeyLogLength {
		return safeLockKey
	}

	return safeLockKey[:maxLockKeyLogLength] + "...(truncated)"
}
