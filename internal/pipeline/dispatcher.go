package pipeline

import (
	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/metrics"
)

// Dispatcher hands stored reports to the background writers without ever
// blocking ingest. A full channel drops the report for that writer only.
type Dispatcher struct {
	StateChan  chan domain.TelemetryReport
	MirrorChan chan domain.TelemetryReport
}

// NewDispatcher creates the writer channels. A size of 0 disables that
// writer.
func NewDispatcher(stateSize, mirrorSize int) *Dispatcher {
	d := &Dispatcher{}
	if stateSize > 0 {
		d.StateChan = make(chan domain.TelemetryReport, stateSize)
	}
	if mirrorSize > 0 {
		d.MirrorChan = make(chan domain.TelemetryReport, mirrorSize)
	}
	return d
}

func (d *Dispatcher) Dispatch(report domain.TelemetryReport) {
	if d.StateChan != nil {
		select {
		case d.StateChan <- report:
		default:
			metrics.DispatchDropped.WithLabelValues("state").Inc()
		}
	}

	if d.MirrorChan != nil {
		select {
		case d.MirrorChan <- report:
		default:
			metrics.DispatchDropped.WithLabelValues("mirror").Inc()
		}
	}
}
