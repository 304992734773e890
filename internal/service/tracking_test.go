package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/notify"
)

type memStore struct {
	mu      sync.Mutex
	reports []domain.TelemetryReport
	owners  map[string]*domain.DeviceOwner

	insertErr error
	ownerErr  error
}

func newMemStore() *memStore {
	return &memStore{owners: map[string]*domain.DeviceOwner{}}
}

func (m *memStore) Insert(ctx context.Context, r domain.TelemetryReport) (domain.TelemetryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return domain.TelemetryReport{}, m.insertErr
	}
	m.reports = append(m.reports, r)
	return r, nil
}

func (m *memStore) sorted(stickID string) []domain.TelemetryReport {
	var out []domain.TelemetryReport
	for _, r := range m.reports {
		if r.DeviceID == stickID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out
}

func (m *memStore) Latest(ctx context.Context, stickID string) (*domain.TelemetryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(stickID)
	if len(all) == 0 {
		return nil, nil
	}
	r := all[0]
	return &r, nil
}

func (m *memStore) Range(ctx context.Context, stickID string, tr domain.TimeRange, limit int) ([]domain.TelemetryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TelemetryReport
	for _, r := range m.sorted(stickID) {
		if tr.From != nil && r.RecordedAt.Before(*tr.From) {
			continue
		}
		if tr.To != nil && r.RecordedAt.After(*tr.To) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateLatestEmergencyFlag(ctx context.Context, stickID string, value bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(stickID)
	if len(all) == 0 || all[0].Emergency == value {
		return false, nil
	}
	for i := range m.reports {
		if m.reports[i].ID == all[0].ID {
			m.reports[i].Emergency = value
		}
	}
	return true, nil
}

func (m *memStore) GetOwner(ctx context.Context, stickID string) (*domain.DeviceOwner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerErr != nil {
		return nil, m.ownerErr
	}
	o, ok := m.owners[stickID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) SetPendingClear(ctx context.Context, stickID string, pending bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.owners[stickID]; ok {
		o.PendingClear = pending
	}
	return nil
}

func (m *memStore) UpdatePushToken(ctx context.Context, stickID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.owners[stickID]; ok {
		o.PushToken = token
	}
	return nil
}

func (m *memStore) owner(stickID string) domain.DeviceOwner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.owners[stickID]
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (e *recordingEmitter) Emit(ctx context.Context, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []domain.AlertTask
	err   error
}

func (q *recordingQueue) EnqueueAlert(ctx context.Context, task domain.AlertTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type recordingWriters struct {
	reports []domain.TelemetryReport
}

func (w *recordingWriters) Dispatch(r domain.TelemetryReport) {
	w.reports = append(w.reports, r)
}

type fallbackDispatcher struct {
	ch chan domain.AlertTask
}

func (f *fallbackDispatcher) Dispatch(ctx context.Context, task domain.AlertTask) map[string]notify.Outcome {
	f.ch <- task
	return nil
}

type harness struct {
	svc     *Tracking
	store   *memStore
	emitter *recordingEmitter
	queue   *recordingQueue
	writers *recordingWriters
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		emitter: &recordingEmitter{},
		queue:   &recordingQueue{},
		writers: &recordingWriters{},
		clock:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.store.owners["stick-1"] = &domain.DeviceOwner{DeviceID: "stick-1", Email: "o@example.com"}

	h.svc = NewTracking(Deps{
		Reports: h.store,
		Owners:  h.store,
		Emitter: h.emitter,
		Alerts:  h.queue,
		Writers: h.writers,
	}, 5*time.Minute)

	var seq int
	h.svc.now = func() time.Time { return h.clock }
	h.svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	return h
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) ingest(t *testing.T, emergency bool) IngestResult {
	t.Helper()
	lat, lng := 12.97, 77.59
	res, err := h.svc.Ingest(context.Background(), domain.IngestRequest{
		StickID:   "stick-1",
		Latitude:  &lat,
		Longitude: &lng,
		Emergency: emergency,
	})
	require.NoError(t, err)
	return res
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t)
	lat := 1.0

	cases := []domain.IngestRequest{
		{Latitude: &lat, Longitude: &lat},
		{StickID: "stick-1", Longitude: &lat},
		{StickID: "stick-1", Latitude: &lat},
	}
	for _, req := range cases {
		_, err := h.svc.Ingest(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, h.store.reports)
	assert.Empty(t, h.emitter.events)
}

func TestIngestAcceptsZeroCoordinates(t *testing.T) {
	h := newHarness(t)
	zero := 0.0
	_, err := h.svc.Ingest(context.Background(), domain.IngestRequest{StickID: "stick-1", Latitude: &zero, Longitude: &zero})
	require.NoError(t, err)
	assert.Len(t, h.store.reports, 1)
}

func TestFirstEmergencyNotifies(t *testing.T) {
	h := newHarness(t)

	res := h.ingest(t, true)

	assert.True(t, res.Alerted)
	assert.True(t, res.Report.Emergency)
	require.Len(t, h.queue.tasks, 1)
	assert.Equal(t, "stick-1", h.queue.tasks[0].DeviceID)
	assert.Equal(t, 12.97, h.queue.tasks[0].Latitude)
}

func TestKeepAliveSuppression(t *testing.T) {
	h := newHarness(t)

	h.ingest(t, true)
	h.advance(10 * time.Second)
	res := h.ingest(t, true)
	assert.False(t, res.Alerted)

	h.advance(6 * time.Minute)
	res = h.ingest(t, true)
	assert.True(t, res.Alerted)

	assert.Len(t, h.queue.tasks, 2)
}

func TestRisingEdgeNotifies(t *testing.T) {
	h := newHarness(t)

	res := h.ingest(t, false)
	assert.False(t, res.Alerted)

	h.advance(10 * time.Second)
	res = h.ingest(t, true)
	assert.True(t, res.Alerted)
}

func TestClearThenNextEmergencyReport(t *testing.T) {
	h := newHarness(t)

	h.ingest(t, true)
	require.NoError(t, h.svc.ClearEmergency(context.Background(), "stick-1"))

	latest, err := h.svc.Latest(context.Background(), "stick-1")
	require.NoError(t, err)
	assert.False(t, latest.Emergency)
	assert.True(t, h.store.owner("stick-1").PendingClear)

	last := h.emitter.events[len(h.emitter.events)-1]
	assert.Equal(t, domain.Event{Type: domain.EventEmergencyCleared, Room: "stick-1"}, last)

	h.advance(10 * time.Second)
	res := h.ingest(t, true)

	assert.Equal(t, domain.CommandClearEmergency, res.Command)
	assert.False(t, res.Report.Emergency)
	assert.False(t, res.Alerted)
	assert.False(t, h.store.owner("stick-1").PendingClear)
	assert.Len(t, h.queue.tasks, 1)

	// the device keeps pressing after the clear was consumed
	h.advance(10 * time.Second)
	res = h.ingest(t, true)
	assert.Equal(t, domain.CommandNone, res.Command)
	assert.True(t, res.Report.Emergency)
	assert.True(t, res.Alerted)
}

func TestPendingClearSurvivesNormalReports(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.ClearEmergency(context.Background(), "stick-1"))

	res := h.ingest(t, false)
	assert.Equal(t, domain.CommandNone, res.Command)
	assert.True(t, h.store.owner("stick-1").PendingClear)
}

func TestStoredEmergencyMatchesReportedUnlessCleared(t *testing.T) {
	h := newHarness(t)
	reported := []bool{false, true, true, false, true, false}

	for _, e := range reported {
		h.advance(time.Minute)
		h.ingest(t, e)
	}

	stored := make([]bool, 0, len(reported))
	for _, r := range h.store.reports {
		stored = append(stored, r.Emergency)
	}
	assert.Equal(t, reported, stored)
}

func TestIngestWithoutOwner(t *testing.T) {
	h := newHarness(t)
	delete(h.store.owners, "stick-1")

	res := h.ingest(t, true)
	assert.True(t, res.Report.Emergency)
	assert.True(t, res.Alerted)
}

func TestIngestStoreErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.store.ownerErr = errors.New("db down")
	lat := 1.0

	_, err := h.svc.Ingest(context.Background(), domain.IngestRequest{StickID: "stick-1", Latitude: &lat, Longitude: &lat})
	assert.EqualError(t, err, "db down")

	h.store.ownerErr = nil
	h.store.insertErr = errors.New("insert failed")
	_, err = h.svc.Ingest(context.Background(), domain.IngestRequest{StickID: "stick-1", Latitude: &lat, Longitude: &lat, Emergency: true})
	assert.EqualError(t, err, "insert failed")
	assert.Empty(t, h.queue.tasks)
	assert.Empty(t, h.emitter.events)
}

func TestIngestSideChannelFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t)
	h.emitter.err = errors.New("redis down")
	h.queue.err = errors.New("redis down")

	fb := &fallbackDispatcher{ch: make(chan domain.AlertTask, 1)}
	h.svc.deps.Fallback = fb

	res := h.ingest(t, true)
	assert.True(t, res.Alerted)

	select {
	case task := <-fb.ch:
		assert.Equal(t, "stick-1", task.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("fallback dispatcher was not used")
	}
}

func TestIngestWithoutQueueDispatchesInProcess(t *testing.T) {
	h := newHarness(t)
	h.svc.deps.Alerts = nil
	fb := &fallbackDispatcher{ch: make(chan domain.AlertTask, 1)}
	h.svc.deps.Fallback = fb

	res := h.ingest(t, true)
	assert.True(t, res.Alerted)

	select {
	case task := <-fb.ch:
		assert.Equal(t, "stick-1", task.DeviceID)
		assert.Equal(t, res.Report.RecordedAt, task.RaisedAt)
	case <-time.After(time.Second):
		t.Fatal("alert was not dispatched")
	}
}

func TestIngestTruncatesToStoredPrecision(t *testing.T) {
	h := newHarness(t)
	h.clock = time.Date(2024, 5, 1, 12, 0, 0, 123_456_789, time.UTC)

	res := h.ingest(t, false)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123_456_000, time.UTC), res.Report.RecordedAt)

	require.Len(t, h.emitter.events, 1)
	assert.Equal(t, res.Report.RecordedAt, h.emitter.events[0].Data.RecordedAt)

	latest, err := h.svc.Latest(context.Background(), "stick-1")
	require.NoError(t, err)
	assert.Equal(t, res.Report.RecordedAt, latest.RecordedAt)
}

func TestIngestEmitsAndDispatchesStoredReport(t *testing.T) {
	h := newHarness(t)
	res := h.ingest(t, false)

	require.Len(t, h.emitter.events, 1)
	ev := h.emitter.events[0]
	assert.Equal(t, domain.EventLocationUpdate, ev.Type)
	assert.Equal(t, "stick-1", ev.Room)
	assert.Equal(t, res.Report, *ev.Data)

	require.Len(t, h.writers.reports, 1)
	assert.Equal(t, res.Report.ID, h.writers.reports[0].ID)
}

func TestLatestNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Latest(context.Background(), "stick-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryRoundTrip(t *testing.T) {
	h := newHarness(t)
	const n = 25
	for i := 0; i < n; i++ {
		h.advance(time.Minute)
		h.ingest(t, false)
	}

	points, err := h.svc.History(context.Background(), "stick-1", HistoryQuery{Limit: n})
	require.NoError(t, err)
	require.Len(t, points, n)
	for i := 1; i < n; i++ {
		assert.True(t, points[i].Time.After(points[i-1].Time), "history must be ascending")
	}

	points, err = h.svc.History(context.Background(), "stick-1", HistoryQuery{Limit: 5})
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.Equal(t, h.clock, points[4].Time, "limit keeps the newest points")
}

func TestHistoryDefaultLimit(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < DefaultHistoryLimit+10; i++ {
		h.advance(time.Second)
		h.ingest(t, false)
	}

	points, err := h.svc.History(context.Background(), "stick-1", HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, points, DefaultHistoryLimit)
}

func TestUpdatePushToken(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.UpdatePushToken(context.Background(), "stick-1", ""), ErrValidation)

	require.NoError(t, h.svc.UpdatePushToken(context.Background(), "stick-1", "fcm-token"))
	assert.Equal(t, "fcm-token", h.store.owner("stick-1").PushToken)
}

func TestConcurrentEmergencyReportsAlertOnce(t *testing.T) {
	h := newHarness(t)
	h.svc.newID = func() string { return fmt.Sprintf("id-%d", time.Now().UnixNano()) }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lat := 1.0
			_, err := h.svc.Ingest(context.Background(), domain.IngestRequest{
				StickID: "stick-1", Latitude: &lat, Longitude: &lat, Emergency: true,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.queue.tasks, 1)
}
