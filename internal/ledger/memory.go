package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
)

// MemoryLedger keeps entries in process memory. Expired entries are dropped
// by a janitor goroutine started with Start and stopped with Close.
type MemoryLedger struct {
	opts Options
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry

	claims  *claimSet
	janitor *janitor
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(opts Options) *MemoryLedger {
	m := &MemoryLedger{
		opts:    opts.normalized(),
		now:     time.Now,
		entries: make(map[string]Entry),
	}

	m.claims = newClaimSet(m.opts.ClaimTimeout)
	m.janitor = newJanitor(m.opts.SweepInterval, func(context.Context) (int, error) {
		return m.sweep(), nil
	})

	return m
}

func (m *MemoryLedger) Lookup(_ context.Context, requestID string) ([]byte, bool, error) {
	if isBlank(requestID) {
		return nil, false, nil
	}

	m.mu.RLock()
	entry, ok := m.entries[requestID]
	m.mu.RUnlock()

	if !ok || entry.expired(m.now()) {
		return nil, false, nil
	}

	return append([]byte(nil), entry.Response...), true, nil
}

func (m *MemoryLedger) Store(_ context.Context, requestID string, payload []byte) error {
	if isBlank(requestID) {
		return nil
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[requestID]; ok && !existing.expired(now) {
		return nil
	}

	entry := Entry{Response: append([]byte(nil), payload...), CreatedAt: now}
	if m.opts.TTL > 0 {
		entry.ExpiresAt = now.Add(m.opts.TTL)
	}

	m.entries[requestID] = entry

	return nil
}

// Claim blocks while another caller holds requestID, up to the claim timeout.
func (m *MemoryLedger) Claim(ctx context.Context, requestID string) (Release, error) {
	return m.claims.claim(ctx, requestID)
}

// Start launches the janitor. It returns immediately; later calls are no-ops.
func (m *MemoryLedger) Start(ctx context.Context) {
	m.janitor.start(commons.NewLoggerFromContext(ctx))
}

func (m *MemoryLedger) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for id, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, id)

			removed++
		}
	}

	return removed
}

// Close stops the janitor and waits for it to exit.
func (m *MemoryLedger) Close(context.Context) error {
	m.janitor.close()

	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
