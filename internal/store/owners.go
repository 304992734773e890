package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"smart-stick/tracker/internal/domain"
)

// GetOwner returns nil, nil when no account is bound to the stick.
func (s *PostgresStore) GetOwner(ctx context.Context, stickID string) (*domain.DeviceOwner, error) {
	var o domain.DeviceOwner
	err := s.pool.QueryRow(ctx, `
		SELECT stick_id, username, email, fcm_token, timezone, pending_clear
		FROM stick_owners
		WHERE stick_id = $1`, stickID).Scan(
		&o.DeviceID,
		&o.Username,
		&o.Email,
		&o.PushToken,
		&o.Timezone,
		&o.PendingClear,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner for %s: %w", stickID, err)
	}
	return &o, nil
}

func (s *PostgresStore) SetPendingClear(ctx context.Context, stickID string, pending bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE stick_owners SET pending_clear = $2, updated_at = NOW()
		WHERE stick_id = $1`, stickID, pending)
	if err != nil {
		return fmt.Errorf("set pending clear for %s: %w", stickID, err)
	}
	return nil
}

func (s *PostgresStore) UpdatePushToken(ctx context.Context, stickID, token string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE stick_owners SET fcm_token = $2, updated_at = NOW()
		WHERE stick_id = $1`, stickID, token)
	if err != nil {
		return fmt.Errorf("update push token for %s: %w", stickID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertOwner(ctx context.Context, o domain.DeviceOwner) error {
	tz := o.Timezone
	if tz == "" {
		tz = domain.DefaultTimezone
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stick_owners (stick_id, username, email, fcm_token, timezone, pending_clear)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stick_id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			fcm_token = EXCLUDED.fcm_token,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()`,
		o.DeviceID, o.Username, o.Email, o.PushToken, tz, o.PendingClear)
	if err != nil {
		return fmt.Errorf("upsert owner %s: %w", o.DeviceID, err)
	}
	return nil
}

type AlertRecord struct {
	ID          string
	StickID     string
	Latitude    float64
	Longitude   float64
	RaisedAt    time.Time
	EmailStatus string
	PushStatus  string
}

// InsertAlert records a dispatched alert. Redelivered tasks keep the first
// record.
func (s *PostgresStore) InsertAlert(ctx context.Context, a AlertRecord) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return fmt.Errorf("alert id %q: %w", a.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO stick_alerts
			(id, stick_id, latitude, longitude, raised_at, email_status, push_status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		id, a.StickID, a.Latitude, a.Longitude, a.RaisedAt, a.EmailStatus, a.PushStatus)
	if err != nil {
		return fmt.Errorf("insert alert for %s: %w", a.StickID, err)
	}
	return nil
}
