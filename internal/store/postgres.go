package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var reportColumns = []string{
	"id",
	"stick_id",
	"latitude",
	"longitude",
	"battery_level",
	"is_charging",
	"obstacle_detected",
	"emergency",
	"recorded_at",
}

const selectReport = `
	SELECT id::text, stick_id, latitude, longitude, battery_level,
	       is_charging, obstacle_detected, emergency, recorded_at
	FROM telemetry_reports`

func (s *PostgresStore) Insert(ctx context.Context, r domain.TelemetryReport) (domain.TelemetryReport, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.TelemetryReport{}, fmt.Errorf("report id %q: %w", r.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry_reports
			(id, stick_id, latitude, longitude, battery_level,
			 is_charging, obstacle_detected, emergency, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		r.DeviceID,
		r.Position.Latitude,
		r.Position.Longitude,
		r.BatteryLevel,
		r.IsCharging,
		r.ObstacleDetected,
		r.Emergency,
		r.RecordedAt,
	)
	if err != nil {
		return domain.TelemetryReport{}, fmt.Errorf("insert report for %s: %w", r.DeviceID, err)
	}
	return r, nil
}

// BatchInsert appends many reports with COPY. Used for backfills and seeding.
func (s *PostgresStore) BatchInsert(ctx context.Context, reports []domain.TelemetryReport) error {
	if len(reports) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(reports))
	for i, r := range reports {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return fmt.Errorf("report id %q: %w", r.ID, err)
		}
		rows[i] = []interface{}{
			id,
			r.DeviceID,
			r.Position.Latitude,
			r.Position.Longitude,
			r.BatteryLevel,
			r.IsCharging,
			r.ObstacleDetected,
			r.Emergency,
			r.RecordedAt,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"telemetry_reports"},
		reportColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("CopyFrom failed for batch of %d: %w", len(reports), err)
	}
	return nil
}

// Latest returns nil, nil when the stick has no reports.
func (s *PostgresStore) Latest(ctx context.Context, stickID string) (*domain.TelemetryReport, error) {
	row := s.pool.QueryRow(ctx, selectReport+`
		WHERE stick_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, stickID)

	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest report for %s: %w", stickID, err)
	}
	return &r, nil
}

// Range returns up to limit reports newest first. Both bounds are inclusive.
func (s *PostgresStore) Range(ctx context.Context, stickID string, tr domain.TimeRange, limit int) ([]domain.TelemetryReport, error) {
	rows, err := s.pool.Query(ctx, selectReport+`
		WHERE stick_id = $1
		  AND ($2::timestamptz IS NULL OR recorded_at >= $2)
		  AND ($3::timestamptz IS NULL OR recorded_at <= $3)
		ORDER BY recorded_at DESC, id DESC
		LIMIT $4`, stickID, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("range reports for %s: %w", stickID, err)
	}
	defer rows.Close()

	reports := make([]domain.TelemetryReport, 0, limit)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range reports for %s: %w", stickID, err)
	}
	return reports, nil
}

// UpdateLatestEmergencyFlag sets emergency on the stick's newest report only.
// It reports whether a row changed; an already-matching flag is left alone.
func (s *PostgresStore) UpdateLatestEmergencyFlag(ctx context.Context, stickID string, value bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE telemetry_reports SET emergency = $2
		WHERE id = (
			SELECT id FROM telemetry_reports
			WHERE stick_id = $1
			ORDER BY recorded_at DESC, id DESC
			LIMIT 1
		) AND emergency <> $2`, stickID, value)
	if err != nil {
		return false, fmt.Errorf("update latest emergency for %s: %w", stickID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanReport(row pgx.Row) (domain.TelemetryReport, error) {
	var r domain.TelemetryReport
	err := row.Scan(
		&r.ID,
		&r.DeviceID,
		&r.Position.Latitude,
		&r.Position.Longitude,
		&r.BatteryLevel,
		&r.IsCharging,
		&r.ObstacleDetected,
		&r.Emergency,
		&r.RecordedAt,
	)
	return r, err
}
