// Package storage holds helpers shared by the snapshot store backends:
// the readiness wait run before a pipeline starts and the health probe
// reported to the presentation layer.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
)

// Pinger is the part of a store the readiness wait needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings p up to attempts times, delay apart. It returns an error
// wrapping channel.ErrStoreUnavailable when the budget runs out.
func WaitReady(ctx context.Context, p Pinger, attempts int, delay time.Duration, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = p.Ping(ctx); lastErr == nil {
			logger.Info("store ready", zap.Int("attempt", attempt))
			return nil
		}
		logger.Warn("store not ready",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", channel.ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", channel.ErrStoreUnavailable, attempts, lastErr)
}

// Counter is the part of a store the health probe needs.
type Counter interface {
	Pinger
	CountAll(ctx context.Context, collection channel.Collection) (int64, error)
}

// CheckHealth reports store connectivity and the record count of collection.
// It never fails; problems surface as a degraded status.
func CheckHealth(ctx context.Context, c Counter, collection channel.Collection) channel.Health {
	if err := c.Ping(ctx); err != nil {
		return channel.Health{Status: channel.StatusDegraded, DB: channel.DBDisconnected}
	}
	n, err := c.CountAll(ctx, collection)
	if err != nil {
		return channel.Health{Status: channel.StatusDegraded, DB: channel.DBConnected}
	}
	return channel.Health{Status: channel.StatusOK, DB: channel.DBConnected, Records: n}
}
