package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/metrics"
	"smart-stick/tracker/internal/store"
)

const DefaultAttemptTimeout = 15 * time.Second

type OwnerLookup interface {
	GetOwner(ctx context.Context, stickID string) (*domain.DeviceOwner, error)
}

type AlertRecorder interface {
	InsertAlert(ctx context.Context, a store.AlertRecord) error
}

type Dispatcher struct {
	owners    OwnerLookup
	recorder  AlertRecorder
	notifiers []Notifier
	timeout   time.Duration
}

// NewDispatcher wires the enabled channels. recorder may be nil.
func NewDispatcher(owners OwnerLookup, recorder AlertRecorder, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Dispatcher{
		owners:    owners,
		recorder:  recorder,
		notifiers: notifiers,
		timeout:   timeout,
	}
}

// Dispatch attempts every channel for one alert. Each channel runs on its
// own goroutine with its own deadline; one failing never stops the others.
// The returned outcomes are for observation only.
func (d *Dispatcher) Dispatch(ctx context.Context, task domain.AlertTask) map[string]Outcome {
	logger := log.WithValues("stickId", task.DeviceID, "alertId", task.ID)

	owner, err := d.owners.GetOwner(ctx, task.DeviceID)
	if err != nil {
		logger.Error(err, "Owner lookup failed, dropping alert")
		return nil
	}
	if owner == nil {
		logger.Warn("No owner bound to stick, dropping alert")
		return nil
	}

	alert := Alert{
		StickID:   task.DeviceID,
		Latitude:  task.Latitude,
		Longitude: task.Longitude,
		RaisedAt:  task.RaisedAt,
	}

	outcomes := make(map[string]Outcome, len(d.notifiers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()

			outcome := d.attempt(ctx, n, *owner, alert, logger)
			metrics.Notifications.WithLabelValues(n.Name(), string(outcome)).Inc()

			mu.Lock()
			outcomes[n.Name()] = outcome
			mu.Unlock()
		}(n)
	}
	wg.Wait()

	d.record(ctx, task, outcomes, logger)
	return outcomes
}

func (d *Dispatcher) attempt(ctx context.Context, n Notifier, owner domain.DeviceOwner, alert Alert, logger log.Logger) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(nil, "Notifier panicked", "channel", n.Name(), "panic", r)
			outcome = OutcomeFailed
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := n.Attempt(attemptCtx, owner, alert)
	switch {
	case errors.Is(err, ErrNoDestination):
		logger.Info("Notification skipped, no destination", "channel", n.Name())
		return OutcomeSkipped
	case err != nil:
		logger.Error(err, "Notification failed", "channel", n.Name())
		return OutcomeFailed
	default:
		logger.Info("Notification sent", "channel", n.Name())
		return OutcomeSent
	}
}

func (d *Dispatcher) record(ctx context.Context, task domain.AlertTask, outcomes map[string]Outcome, logger log.Logger) {
	if d.recorder == nil {
		return
	}

	status := func(channel string) string {
		if o, ok := outcomes[channel]; ok {
			return string(o)
		}
		return string(OutcomeSkipped)
	}

	err := d.recorder.InsertAlert(ctx, store.AlertRecord{
		ID:          task.ID,
		StickID:     task.DeviceID,
		Latitude:    task.Latitude,
		Longitude:   task.Longitude,
		RaisedAt:    task.RaisedAt,
		EmailStatus: status("email"),
		PushStatus:  status("push"),
	})
	if err != nil {
		logger.Error(err, "Failed to record alert")
	}
}
