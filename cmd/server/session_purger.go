package main

import (
	"context"
	"log/slog"
	"time"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) error
}

// runSessionPurger purges expired sessions every interval until ctx is done.
func runSessionPurger(ctx context.Context, logger *slog.Logger, sessions sessionPurger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	purgeOnTick(ctx, logger, sessions, ticker.C)
}

// purgeOnTick calls PurgeExpired for every value on ticks and returns once
// ctx is done or ticks is closed. Failures are logged and retried on the next
// tick.
func purgeOnTick(ctx context.Context, logger *slog.Logger, sessions sessionPurger, ticks <-chan time.Time) {
	if sessions == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			err := sessions.PurgeExpired(ctx)
			if err != nil && ctx.Err() == nil && logger != nil {
				logger.Warn("expired session purge failed", "error", err)
			}
		}
	}
}
