package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	"github.com/LerianStudio/beneficiary-pay/pkg/runtime"
)

// janitor calls sweep on every tick until stopped.
type janitor struct {
	interval time.Duration
	sweep    func(ctx context.Context) (int, error)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func newJanitor(interval time.Duration, sweep func(ctx context.Context) (int, error)) *janitor {
	return &janitor{
		interval: interval,
		sweep:    sweep,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (j *janitor) start(logger log.Logger) {
	j.startOnce.Do(func() {
		go j.run(logger)
	})
}

func (j *janitor) run(logger log.Logger) {
	defer close(j.done)

	ctx := context.Background()
	defer runtime.RecoverAndLog(ctx, logger, "idempotency janitor")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			n, err := j.sweep(ctx)
			if err != nil {
				logger.Log(ctx, log.LevelWarn, "idempotency sweep failed", log.Err(err))
				continue
			}

			if n > 0 {
				logger.Log(ctx, log.LevelDebug, "expired idempotency entries removed", log.Int("count", n))
			}
		}
	}
}

// close stops the loop and waits for it to exit. It does not wait on a
// janitor that was never started.
func (j *janitor) close() {
	j.stopOnce.Do(func() {
		close(j.stop)

		started := true
		j.startOnce.Do(func() { started = false })

		if started {
			<-j.done
		}
	})
}
