package pipeline

import (
	"context"
	"time"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
)

type StateSink interface {
	PipelineStateUpdate(ctx context.Context, reports []domain.TelemetryReport) error
}

// StateWriter keeps the cached latest position of each stick fresh.
type StateWriter struct {
	ch        <-chan domain.TelemetryReport
	sink      StateSink
	batchSize int
	interval  time.Duration
}

func NewStateWriter(ch <-chan domain.TelemetryReport, sink StateSink, batchSize int, interval time.Duration) *StateWriter {
	return &StateWriter{ch: ch, sink: sink, batchSize: batchSize, interval: interval}
}

func (w *StateWriter) Start(ctx context.Context) error {
	runBatches(ctx, w.ch, w.batchSize, w.interval, w.flush)
	return nil
}

func (w *StateWriter) flush(ctx context.Context, batch []domain.TelemetryReport) {
	if err := w.sink.PipelineStateUpdate(ctx, batch); err != nil {
		log.Error(err, "Redis state update failed", "batch", len(batch))
	}
}
