package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrOpen is returned by Execute while a breaker rejects calls.
	ErrOpen = errors.New("circuit breaker open")
	// ErrNotFound is returned when Execute names a breaker that was never created.
	ErrNotFound = errors.New("circuit breaker not found")
)

// Manager keeps one breaker per downstream service.
type Manager interface {
	GetOrCreate(serviceName string, config Config) CircuitBreaker
	// Execute runs fn through the named breaker. A rejected call returns an
	// error wrapping ErrOpen without invoking fn.
	Execute(serviceName string, fn func() (any, error)) (any, error)
	GetState(serviceName string) State
	GetCounts(serviceName string) Counts
	IsHealthy(serviceName string) bool
	Reset(serviceName string)
	RegisterStateChangeListener(listener StateChangeListener)
	Services() []string
}

type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config holds breaker thresholds.
type Config struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state window after which counts reset
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32 // requests needed before FailureRatio applies
}

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener is notified asynchronously on every transition.
type StateChangeListener interface {
	OnStateChange(serviceName string, from State, to State)
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
