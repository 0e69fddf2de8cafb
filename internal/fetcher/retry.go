// Package fetcher retrieves pages with a bounded, synchronous retry budget.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
)

// Retrier runs an operation until it succeeds or the attempt budget is spent.
// State is the number of attempts remaining; each failure decrements it and
// waits Delay before the next try.
type Retrier struct {
	Attempts int
	Delay    time.Duration
	Pauser   channel.Pauser
	Logger   *zap.Logger
}

// NewRetrier builds a Retrier. Attempts below 1 are raised to 1.
func NewRetrier(attempts int, delay time.Duration, pauser channel.Pauser, logger *zap.Logger) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{Attempts: attempts, Delay: delay, Pauser: pauser, Logger: logger}
}

// Do invokes op up to r.Attempts times. On exhaustion it returns a
// *channel.FetchError wrapping the last failure. Context cancellation stops
// the loop immediately.
func (r *Retrier) Do(ctx context.Context, target string, op func(context.Context) error) error {
	remaining := r.Attempts
	attempt := 0
	var lastErr error
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return &channel.FetchError{URL: target, Attempts: attempt, Err: err}
		}
		attempt++
		remaining--
		lastErr = op(ctx)
		if lastErr == nil {
			metrics.ObserveFetchAttempt("ok")
			return nil
		}
		metrics.ObserveFetchAttempt("error")
		if errors.Is(lastErr, context.Canceled) {
			break
		}
		r.Logger.Warn("fetch attempt failed",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Int("remaining", remaining),
			zap.Error(lastErr),
		)
		if remaining > 0 && r.Pauser != nil {
			r.Pauser.Pause(ctx, r.Delay)
		}
	}
	return &channel.FetchError{URL: target, Attempts: attempt, Err: fmt.Errorf("last attempt: %w", lastErr)}
}
