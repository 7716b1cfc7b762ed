package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	libRedis "github.com/LerianStudio/beneficiary-pay/pkg/redis"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix  = "beneficiary-pay"
	DefaultLockExpiry = 60 * time.Second

	lockRetryDelay    = 50 * time.Millisecond
	lockMaxRetryDelay = 500 * time.Millisecond
	lockMaxTries      = 10000
)

// ClientProvider hands out the current go-redis client.
type ClientProvider interface {
	GetClient(ctx context.Context) (redis.UniversalClient, error)
}

// RedisLedger shares entries and claims across every process pointing at the
// same Redis. Entries expire through the Redis TTL.
type RedisLedger struct {
	client     ClientProvider
	locks      libRedis.LockManager
	opts       Options
	prefix     string
	lockExpiry time.Duration
	now        func() time.Time
}

var _ Ledger = (*RedisLedger)(nil)

type RedisOptions struct {
	Options
	KeyPrefix  string
	LockExpiry time.Duration
}

type redisRecord struct {
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"createdAt"`
}

func NewRedisLedger(client ClientProvider, locks libRedis.LockManager, opts RedisOptions) (*RedisLedger, error) {
	if client == nil {
		return nil, libRedis.ErrNilClient
	}

	if locks == nil {
		return nil, libRedis.ErrNilLockManager
	}

	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	lockExpiry := opts.LockExpiry
	if lockExpiry <= 0 {
		lockExpiry = DefaultLockExpiry
	}

	return &RedisLedger{
		client:     client,
		locks:      locks,
		opts:       opts.Options.normalized(),
		prefix:     prefix,
		lockExpiry: lockExpiry,
		now:        time.Now,
	}, nil
}

func (r *RedisLedger) entryKey(requestID string) string {
	return r.prefix + ":idempotency:" + requestID
}

func (r *RedisLedger) lockKey(requestID string) string {
	return r.prefix + ":lock:" + requestID
}

func (r *RedisLedger) Lookup(ctx context.Context, requestID string) ([]byte, bool, error) {
	if isBlank(requestID) {
		return nil, false, nil
	}

	_, tracer, _ := commons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.redis.lookup")
	defer span.End()

	rdb, err := r.client.GetClient(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to get redis client", err)

		return nil, false, err
	}

	raw, err := rdb.Get(ctx, r.entryKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to read idempotency entry", err)

		return nil, false, fmt.Errorf("read idempotency entry: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		opentelemetry.HandleSpanError(span, "Failed to decode idempotency entry", err)

		return nil, false, fmt.Errorf("%w: decode: %w", ErrSerialization, err)
	}

	return record.Response, true, nil
}

// Store writes payload with SET NX, so the first writer across all processes wins.
func (r *RedisLedger) Store(ctx context.Context, requestID string, payload []byte) error {
	if isBlank(requestID) {
		return nil
	}

	logger, tracer, _ := commons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.redis.store")
	defer span.End()

	raw, err := json.Marshal(redisRecord{Response: payload, CreatedAt: r.now().UTC()})
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to encode idempotency entry", err)

		return fmt.Errorf("%w: encode: %w", ErrSerialization, err)
	}

	rdb, err := r.client.GetClient(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to get redis client", err)

		return err
	}

	stored, err := rdb.SetNX(ctx, r.entryKey(requestID), raw, r.opts.TTL).Result()
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to write idempotency entry", err)

		return fmt.Errorf("write idempotency entry: %w", err)
	}

	if !stored {
		logger.Log(ctx, log.LevelDebug, "idempotency entry already present, keeping first write", log.String("request_id", requestID))
	}

	return nil
}

// Claim takes a redsync mutex on the request id. Waiting is bounded by the
// claim timeout; the lease itself expires after the lock expiry.
func (r *RedisLedger) Claim(ctx context.Context, requestID string) (Release, error) {
	if isBlank(requestID) {
		return nil, ErrBlankKey
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.opts.ClaimTimeout)
	defer cancel()

	handle, err := r.locks.Lock(waitCtx, r.lockKey(requestID), libRedis.LockOptions{
		Expiry:        r.lockExpiry,
		Tries:         lockMaxTries,
		RetryDelay:    lockRetryDelay,
		MaxRetryDelay: lockMaxRetryDelay,
	})
	if err != nil {
		if errors.Is(err, libRedis.ErrLockBusy) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, claimWaitError(ctx, err)
		}

		return nil, fmt.Errorf("claim request id: %w", err)
	}

	var once sync.Once

	return func(ctx context.Context) {
		once.Do(func() {
			if err := handle.Unlock(context.WithoutCancel(ctx)); err != nil {
				logger, _, _ := commons.NewTrackingFromContext(ctx)
				logger.Log(ctx, log.LevelWarn, "failed to release idempotency claim", log.String("request_id", requestID), log.Err(err))
			}
		})
	}, nil
}
