package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires idle sessions, independent of request traffic.
type Sweeper struct {
	store    Store
	interval time.Duration
	maxIdle  time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. If interval is <= 0, it defaults to hourly.
func NewSweeper(store Store, interval, maxIdle time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval, maxIdle: maxIdle, logger: slog.Default()}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if removed := sw.store.Sweep(sw.maxIdle); removed > 0 {
			sw.logger.Info("expired idle sessions", "removed", removed)
		}
	}
}
