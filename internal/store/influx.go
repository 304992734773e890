package store

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/domain"
)

const mirrorMeasurement = "stick_telemetry"

// InfluxStore mirrors accepted reports into InfluxDB for dashboards. It is
// never read by the tracker itself.
type InfluxStore struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

func NewInfluxStore(ctx context.Context, cfg *config.Config) (*InfluxStore, error) {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach influxdb: %w", err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is not ready", cfg.InfluxURL)
	}

	return &InfluxStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}, nil
}

func (s *InfluxStore) Close() {
	s.client.Close()
}

func (s *InfluxStore) WriteReports(ctx context.Context, reports []domain.TelemetryReport) error {
	if len(reports) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(reports))
	for _, r := range reports {
		points = append(points, ReportPoint(r))
	}

	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write failed for batch of %d: %w", len(reports), err)
	}
	return nil
}

func ReportPoint(r domain.TelemetryReport) *write.Point {
	fields := map[string]interface{}{
		"lat":       r.Position.Latitude,
		"lng":       r.Position.Longitude,
		"charging":  r.IsCharging,
		"obstacle":  r.ObstacleDetected,
		"emergency": r.Emergency,
	}
	if r.BatteryLevel != nil {
		fields["battery"] = *r.BatteryLevel
	}

	return influxdb2.NewPoint(
		mirrorMeasurement,
		map[string]string{"stick_id": r.DeviceID},
		fields,
		r.RecordedAt,
	)
}
