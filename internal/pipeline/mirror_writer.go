package pipeline

import (
	"context"
	"time"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/metrics"
)

type MirrorSink interface {
	WriteReports(ctx context.Context, reports []domain.TelemetryReport) error
}

// MirrorWriter copies accepted reports to the time-series mirror in
// batches. A batch that fails twice is dropped.
type MirrorWriter struct {
	ch         <-chan domain.TelemetryReport
	sink       MirrorSink
	batchSize  int
	interval   time.Duration
	retryDelay time.Duration
}

func NewMirrorWriter(ch <-chan domain.TelemetryReport, sink MirrorSink, batchSize int, interval time.Duration) *MirrorWriter {
	return &MirrorWriter{
		ch:         ch,
		sink:       sink,
		batchSize:  batchSize,
		interval:   interval,
		retryDelay: 500 * time.Millisecond,
	}
}

func (w *MirrorWriter) Start(ctx context.Context) error {
	runBatches(ctx, w.ch, w.batchSize, w.interval, w.flush)
	return nil
}

func (w *MirrorWriter) flush(ctx context.Context, batch []domain.TelemetryReport) {
	err := w.sink.WriteReports(ctx, batch)
	if err == nil {
		return
	}

	log.Warn("Mirror write failed, retrying", "batch", len(batch), "error", err)
	time.Sleep(w.retryDelay)

	if err := w.sink.WriteReports(ctx, batch); err != nil {
		log.Error(err, "Mirror write permanently failed", "batch", len(batch))
		metrics.DispatchDropped.WithLabelValues("mirror").Add(float64(len(batch)))
	}
}
