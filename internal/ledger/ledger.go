// Package ledger records the final response of every completed payment
// workflow under its request id, so a retried request is answered from the
// ledger instead of being executed again.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Minute
	DefaultClaimTimeout  = 15 * time.Second
)

var (
	// ErrClaimTimeout is returned when another run kept the request id claimed
	// for longer than the claim timeout.
	ErrClaimTimeout = errors.New("idempotency claim timed out")
	// ErrSerialization wraps encode and decode failures of stored entries.
	ErrSerialization = errors.New("idempotency entry serialization failed")
	ErrBlankKey      = errors.New("idempotency key is blank")
)

// Ledger is an insert-if-absent store keyed by request id.
//
// Lookup of a blank or unknown key reports absent. Store keeps the first
// payload written for a key and silently ignores later writes. Claim marks a
// key as in flight; a second Claim on the same key waits for the first
// Release or fails with ErrClaimTimeout.
type Ledger interface {
	Lookup(ctx context.Context, requestID string) ([]byte, bool, error)
	Store(ctx context.Context, requestID string, payload []byte) error
	Claim(ctx context.Context, requestID string) (Release, error)
}

// Release ends a claim. Calling it more than once is a no-op.
type Release func(ctx context.Context)

// Entry is one stored response. A zero ExpiresAt never expires.
type Entry struct {
	Response  []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Options configures both backends. A zero TTL keeps entries forever; other
// zero values take the package defaults.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	ClaimTimeout  time.Duration
}

func (o Options) normalized() Options {
	if o.TTL < 0 {
		o.TTL = 0
	}

	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}

	if o.ClaimTimeout <= 0 {
		o.ClaimTimeout = DefaultClaimTimeout
	}

	return o
}

func isBlank(requestID string) bool {
	return strings.TrimSpace(requestID) == ""
}

