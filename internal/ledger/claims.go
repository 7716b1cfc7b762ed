package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// claimSet serializes runs on the same request id inside one process.
type claimSet struct {
	timeout time.Duration

	mu   sync.Mutex
	held map[string]chan struct{}
}

func newClaimSet(timeout time.Duration) *claimSet {
	return &claimSet{timeout: timeout, held: make(map[string]chan struct{})}
}

// claim blocks while another caller holds requestID, up to the claim timeout.
// Only the claim timeout itself yields ErrClaimTimeout; a caller context that
// ends first returns its own error.
func (c *claimSet) claim(ctx context.Context, requestID string) (Release, error) {
	if isBlank(requestID) {
		return nil, ErrBlankKey
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for {
		c.mu.Lock()

		held, busy := c.held[requestID]
		if !busy {
			mine := make(chan struct{})
			c.held[requestID] = mine
			c.mu.Unlock()

			return c.releaseFunc(requestID, mine), nil
		}

		c.mu.Unlock()

		select {
		case <-held:
		case <-waitCtx.Done():
			return nil, claimWaitError(ctx, waitCtx.Err())
		}
	}
}

func (c *claimSet) releaseFunc(requestID string, mine chan struct{}) Release {
	var once sync.Once

	return func(context.Context) {
		once.Do(func() {
			c.mu.Lock()
			if c.held[requestID] == mine {
				delete(c.held, requestID)
			}
			c.mu.Unlock()

			close(mine)
		})
	}
}

// claimWaitError classifies a wait that ended before the claim was taken.
func claimWaitError(parent context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("claim request id: %w", parentErr)
	}

	return fmt.Errorf("%w: %w", ErrClaimTimeout, err)
}
