// Package service holds the tracking use cases shared by every transport:
// device ingest, history queries and the companion clear command.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/metrics"
	"smart-stick/tracker/internal/notify"
	"smart-stick/tracker/internal/pipeline"
)

const DefaultHistoryLimit = 200

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

type ReportStore interface {
	Insert(ctx context.Context, r domain.TelemetryReport) (domain.TelemetryReport, error)
	Latest(ctx context.Context, stickID string) (*domain.TelemetryReport, error)
	Range(ctx context.Context, stickID string, tr domain.TimeRange, limit int) ([]domain.TelemetryReport, error)
	UpdateLatestEmergencyFlag(ctx context.Context, stickID string, value bool) (bool, error)
}

type OwnerStore interface {
	GetOwner(ctx context.Context, stickID string) (*domain.DeviceOwner, error)
	SetPendingClear(ctx context.Context, stickID string, pending bool) error
	UpdatePushToken(ctx context.Context, stickID, token string) error
}

type Emitter interface {
	Emit(ctx context.Context, ev domain.Event) error
}

type AlertQueue interface {
	EnqueueAlert(ctx context.Context, task domain.AlertTask) error
}

type ReportDispatcher interface {
	Dispatch(report domain.TelemetryReport)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, task domain.AlertTask) map[string]notify.Outcome
}

type Deps struct {
	Reports ReportStore
	Owners  OwnerStore
	Emitter Emitter

	// Alerts queues alert tasks for the notification workers. When nil,
	// alerts go straight to Fallback.
	Alerts AlertQueue

	// Writers receives every stored report; optional.
	Writers ReportDispatcher

	// Fallback delivers alerts in-process when there is no queue or the
	// queue rejects them; optional.
	Fallback AlertDispatcher
}

type Tracking struct {
	deps      Deps
	keepAlive time.Duration
	locks     keyedMutex

	now   func() time.Time
	newID func() string
}

func NewTracking(deps Deps, keepAlive time.Duration) *Tracking {
	if keepAlive <= 0 {
		keepAlive = pipeline.DefaultKeepAlive
	}
	return &Tracking{
		deps:      deps,
		keepAlive: keepAlive,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

type IngestResult struct {
	Report  domain.TelemetryReport
	Command domain.Command
	Alerted bool
}

// Ingest runs one device report through the alert decision, stores it and
// fans it out. Store failures are returned; realtime and notification
// failures are only logged.
func (s *Tracking) Ingest(ctx context.Context, req domain.IngestRequest) (IngestResult, error) {
	if req.StickID == "" || req.Latitude == nil || req.Longitude == nil {
		metrics.IngestErrors.WithLabelValues("validation").Inc()
		return IngestResult{}, fmt.Errorf("%w: missing stickId, latitude, or longitude", ErrValidation)
	}

	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	unlock := s.locks.Lock(req.StickID)
	defer unlock()

	owner, err := s.deps.Owners.GetOwner(ctx, req.StickID)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("owner").Inc()
		return IngestResult{}, err
	}

	var previous *domain.TelemetryReport
	if req.Emergency {
		previous, err = s.deps.Reports.Latest(ctx, req.StickID)
		if err != nil {
			metrics.IngestErrors.WithLabelValues("previous").Inc()
			return IngestResult{}, err
		}
	}

	// Postgres keeps microseconds; the emitted report must match what a
	// later read returns.
	now := s.now().UTC().Truncate(time.Microsecond)
	decision := pipeline.Evaluate(pipeline.EvaluationInput{
		Reported:  req.Emergency,
		Owner:     owner,
		Previous:  previous,
		Now:       now,
		KeepAlive: s.keepAlive,
	})

	if decision.ResetPendingClear {
		if err := s.deps.Owners.SetPendingClear(ctx, req.StickID, false); err != nil {
			metrics.IngestErrors.WithLabelValues("pending_clear").Inc()
			return IngestResult{}, err
		}
		log.Info("Pending clear delivered to stick", "stickId", req.StickID)
	}

	stored, err := s.deps.Reports.Insert(ctx, domain.TelemetryReport{
		ID:               s.newID(),
		DeviceID:         req.StickID,
		Position:         domain.Position{Latitude: *req.Latitude, Longitude: *req.Longitude},
		BatteryLevel:     req.BatteryLevel,
		IsCharging:       req.IsCharging,
		ObstacleDetected: req.ObstacleDetected,
		Emergency:        decision.FinalEmergency,
		RecordedAt:       now,
	})
	if err != nil {
		metrics.IngestErrors.WithLabelValues("insert").Inc()
		return IngestResult{}, err
	}
	metrics.ReportsIngested.Inc()

	s.emit(ctx, domain.Event{Type: domain.EventLocationUpdate, Room: stored.DeviceID, Data: &stored})

	if s.deps.Writers != nil {
		s.deps.Writers.Dispatch(stored)
	}

	if decision.ShouldNotify {
		s.raiseAlert(ctx, stored)
	}

	return IngestResult{Report: stored, Command: decision.Command, Alerted: decision.ShouldNotify}, nil
}

func (s *Tracking) raiseAlert(ctx context.Context, r domain.TelemetryReport) {
	metrics.AlertsRaised.Inc()

	task := domain.AlertTask{
		ID:        s.newID(),
		DeviceID:  r.DeviceID,
		Latitude:  r.Position.Latitude,
		Longitude: r.Position.Longitude,
		RaisedAt:  r.RecordedAt,
	}

	if s.deps.Alerts != nil {
		err := s.deps.Alerts.EnqueueAlert(ctx, task)
		if err == nil {
			log.Info("Emergency alert queued", "stickId", r.DeviceID, "alertId", task.ID)
			return
		}
		metrics.DispatchDropped.WithLabelValues("notify").Inc()
		log.Error(err, "Failed to queue emergency alert", "stickId", r.DeviceID, "alertId", task.ID)
	}

	if s.deps.Fallback != nil {
		go s.deps.Fallback.Dispatch(context.WithoutCancel(ctx), task)
	}
}

func (s *Tracking) emit(ctx context.Context, ev domain.Event) {
	if err := s.deps.Emitter.Emit(ctx, ev); err != nil {
		log.Error(err, "Realtime emit failed", "stickId", ev.Room, "event", string(ev.Type))
	}
}

func (s *Tracking) Latest(ctx context.Context, stickID string) (domain.TelemetryReport, error) {
	r, err := s.deps.Reports.Latest(ctx, stickID)
	if err != nil {
		return domain.TelemetryReport{}, err
	}
	if r == nil {
		return domain.TelemetryReport{}, ErrNotFound
	}
	return *r, nil
}

type HistoryQuery struct {
	Limit int
	Range domain.TimeRange
}

// History returns the newest Limit points in the range, oldest first.
func (s *Tracking) History(ctx context.Context, stickID string, q HistoryQuery) ([]domain.HistoryPoint, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	reports, err := s.deps.Reports.Range(ctx, stickID, q.Range, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(reports)

	points := make([]domain.HistoryPoint, 0, len(reports))
	for _, r := range reports {
		points = append(points, domain.HistoryPoint{
			Lat:  r.Position.Latitude,
			Lng:  r.Position.Longitude,
			Time: r.RecordedAt,
		})
	}
	return points, nil
}

// ClearEmergency records a pending clear for the stick's next emergency
// report and flips the latest stored report immediately so clients see the
// change without waiting for the device.
func (s *Tracking) ClearEmergency(ctx context.Context, stickID string) error {
	unlock := s.locks.Lock(stickID)
	defer unlock()

	if err := s.deps.Owners.SetPendingClear(ctx, stickID, true); err != nil {
		return err
	}

	changed, err := s.deps.Reports.UpdateLatestEmergencyFlag(ctx, stickID, false)
	if err != nil {
		return err
	}
	log.Info("Emergency cleared by owner", "stickId", stickID, "latestFlipped", changed)

	s.emit(ctx, domain.Event{Type: domain.EventEmergencyCleared, Room: stickID})
	return nil
}

func (s *Tracking) UpdatePushToken(ctx context.Context, stickID, token string) error {
	if token == "" {
		return fmt.Errorf("%w: FCM token is required", ErrValidation)
	}
	return s.deps.Owners.UpdatePushToken(ctx, stickID, token)
}
