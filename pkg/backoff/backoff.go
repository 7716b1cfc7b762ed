// Package backoff computes exponential delays with full jitter. It paces
// Redis reconnect attempts and idempotency lock retries; downstream payment
// calls are never retried.
package backoff

import (
	"crypto/rand"
	"math"
	"math/big"
	mrand "math/rand"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts count as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// Capped is Exponential bounded by maxDelay. A non-positive maxDelay disables the cap.
func Capped(base, maxDelay time.Duration, attempt int) time.Duration {
	d := Exponential(base, attempt)
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}

	return d
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return time.Duration(mrand.Int63n(int64(delay))) // #nosec G404 -- jitter only
	}

	return time.Duration(n.Int64())
}

// ExponentialWithJitter returns a random duration in [0, min(base*2^attempt, maxDelay)).
func ExponentialWithJitter(base, maxDelay time.Duration, attempt int) time.Duration {
	return FullJitter(Capped(base, maxDelay, attempt))
}
