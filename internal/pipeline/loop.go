package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// runEvery runs fn immediately and then on every tick until ctx is
// cancelled. Failures are logged and the loop carries on.
func runEvery(ctx context.Context, interval time.Duration, logger *slog.Logger, name string, fn func(context.Context) error) error {
	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, name+" failed", slog.String("error", err.Error()))
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(name + " loop stopped")
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
