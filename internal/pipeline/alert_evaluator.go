package pipeline

import (
	"time"

	"smart-stick/tracker/internal/domain"
)

const DefaultKeepAlive = 5 * time.Minute

// EvaluationInput is everything the alert decision needs for one report.
// Owner and Previous are nil when no record exists.
type EvaluationInput struct {
	Reported  bool
	Owner     *domain.DeviceOwner
	Previous  *domain.TelemetryReport
	Now       time.Time
	KeepAlive time.Duration
}

type Decision struct {
	FinalEmergency    bool
	Command           domain.Command
	ResetPendingClear bool
	ShouldNotify      bool
}

// Evaluate decides the stored emergency state for an inbound report and
// whether it should raise a notification. It has no side effects.
func Evaluate(in EvaluationInput) Decision {
	var d Decision

	if in.Reported && in.Owner != nil && in.Owner.PendingClear {
		d.FinalEmergency = false
		d.Command = domain.CommandClearEmergency
		d.ResetPendingClear = true
	} else {
		d.FinalEmergency = in.Reported
	}

	if !d.FinalEmergency {
		return d
	}

	keepAlive := in.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	switch {
	case in.Previous == nil:
		d.ShouldNotify = true
	case !in.Previous.Emergency:
		d.ShouldNotify = true
	case in.Now.Sub(in.Previous.RecordedAt) > keepAlive:
		d.ShouldNotify = true
	}

	return d
}
