package pipeline

import (
	"context"
	"time"

	"smart-stick/tracker/internal/domain"
)

const shutdownFlushTimeout = 5 * time.Second

// runBatches collects reports from ch and calls flush when the batch is full
// or the ticker fires. The last partial batch is flushed on shutdown with a
// fresh context, since ctx is already done by then.
func runBatches(
	ctx context.Context,
	ch <-chan domain.TelemetryReport,
	size int,
	interval time.Duration,
	flush func(context.Context, []domain.TelemetryReport),
) {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	batch := make([]domain.TelemetryReport, 0, size)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	final := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		flush(flushCtx, batch)
	}

	for {
		select {
		case r, ok := <-ch:
			if !ok {
				final()
				return
			}
			batch = append(batch, r)
			if len(batch) >= size {
				flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			final()
			return
		}
	}
}
