package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-stick/tracker/internal/db/migrate"
	"smart-stick/tracker/internal/domain"
)

// newTestPostgres connects to TEST_DATABASE_URL, a postgres:// URL for a
// disposable database with PostGIS available.
func newTestPostgres(t *testing.T) (*PostgresStore, string) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, migrate.Run(url, "up"))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)

	stickID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM telemetry_reports WHERE stick_id = $1`, stickID)
		_, _ = pool.Exec(context.Background(), `DELETE FROM stick_owners WHERE stick_id = $1`, stickID)
		pool.Close()
	})
	return &PostgresStore{pool: pool}, stickID
}

func testReport(id, stickID string, at time.Time, emergency bool) domain.TelemetryReport {
	return domain.TelemetryReport{
		ID:         id,
		DeviceID:   stickID,
		Position:   domain.Position{Latitude: 12.97, Longitude: 77.59},
		Emergency:  emergency,
		RecordedAt: at,
	}
}

func TestPostgresRangeEndOfDay(t *testing.T) {
	s, stickID := newTestPostgres(t)
	ctx := context.Background()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.BatchInsert(ctx, []domain.TelemetryReport{
		testReport(uuid.NewString(), stickID, day.Add(-time.Millisecond), false),
		testReport(uuid.NewString(), stickID, day, false),
		testReport(uuid.NewString(), stickID, day.Add(12*time.Hour), false),
		testReport(uuid.NewString(), stickID, day.Add(24*time.Hour-time.Millisecond), false),
		testReport(uuid.NewString(), stickID, day.Add(24*time.Hour), false),
	}))

	tr, err := ParseTimeRange("2024-05-01", "2024-05-01")
	require.NoError(t, err)

	got, err := s.Range(ctx, stickID, tr, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].RecordedAt.Equal(day.Add(24*time.Hour-time.Millisecond)))
	assert.True(t, got[2].RecordedAt.Equal(day))

	got, err = s.Range(ctx, stickID, domain.TimeRange{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].RecordedAt.Equal(day.Add(24*time.Hour)))
}

func TestPostgresTieBreakOnID(t *testing.T) {
	s, stickID := newTestPostgres(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	low, high := uuid.NewString(), uuid.NewString()
	if low > high {
		low, high = high, low
	}
	_, err := s.Insert(ctx, testReport(high, stickID, at, false))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testReport(low, stickID, at, false))
	require.NoError(t, err)

	latest, err := s.Latest(ctx, stickID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, high, latest.ID)

	got, err := s.Range(ctx, stickID, domain.TimeRange{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high, got[0].ID)
	assert.Equal(t, low, got[1].ID)
}

func TestPostgresUpdateLatestEmergencyFlag(t *testing.T) {
	s, stickID := newTestPostgres(t)
	ctx := context.Background()

	changed, err := s.UpdateLatestEmergencyFlag(ctx, stickID, false)
	require.NoError(t, err)
	assert.False(t, changed, "no reports yet")

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	older := uuid.NewString()
	newer := uuid.NewString()
	require.NoError(t, s.BatchInsert(ctx, []domain.TelemetryReport{
		testReport(older, stickID, at, true),
		testReport(newer, stickID, at.Add(time.Second), true),
	}))

	changed, err = s.UpdateLatestEmergencyFlag(ctx, stickID, false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.UpdateLatestEmergencyFlag(ctx, stickID, false)
	require.NoError(t, err)
	assert.False(t, changed, "already cleared")

	got, err := s.Range(ctx, stickID, domain.TimeRange{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.False(t, got[0].Emergency)
	assert.Equal(t, older, got[1].ID)
	assert.True(t, got[1].Emergency, "only the latest report is cleared")
}

func TestPostgresKeepsMicroseconds(t *testing.T) {
	s, stickID := newTestPostgres(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 10, 0, 0, 123_456_000, time.UTC)
	_, err := s.Insert(ctx, testReport(uuid.NewString(), stickID, at, false))
	require.NoError(t, err)

	latest, err := s.Latest(ctx, stickID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.RecordedAt.Equal(at))
}
