package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy is a bounded exponential-backoff retry policy. The zero value is
// not usable; construct with Default or fill in all fields.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// Default returns the policy used for transient backend calls: 3 attempts,
// 1s initial delay, doubling.
func Default() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}
}

// Do runs fn until it succeeds or the attempt budget is exhausted, sleeping
// between attempts. op names the operation for logging and error messages.
// A cancelled context aborts the wait and returns ctx.Err().
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		slog.Warn("retrying after failure", "op", op, "attempt", attempt, "backoff", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, lastErr)
}
