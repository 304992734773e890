package domain

import (
	"encoding/json"
	"time"
)

type Position struct {
	Latitude  float64
	Longitude float64
}

// TelemetryReport is one accepted device transmission. Emergency holds the
// final state after the alert decision, not the raw reported flag.
type TelemetryReport struct {
	ID       string
	DeviceID string

	Position Position

	BatteryLevel     *float64
	IsCharging       bool
	ObstacleDetected bool
	Emergency        bool

	RecordedAt time.Time
}

type geoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type reportJSON struct {
	ID               string    `json:"id"`
	StickID          string    `json:"stickId"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Location         geoPoint  `json:"location"`
	BatteryLevel     *float64  `json:"batteryLevel,omitempty"`
	IsCharging       bool      `json:"isCharging"`
	ObstacleDetected bool      `json:"obstacleDetected"`
	Emergency        bool      `json:"emergency"`
	Timestamp        time.Time `json:"timestamp"`
}

func (r TelemetryReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ID:        r.ID,
		StickID:   r.DeviceID,
		Latitude:  r.Position.Latitude,
		Longitude: r.Position.Longitude,
		Location: geoPoint{
			Type:        "Point",
			Coordinates: [2]float64{r.Position.Longitude, r.Position.Latitude},
		},
		BatteryLevel:     r.BatteryLevel,
		IsCharging:       r.IsCharging,
		ObstacleDetected: r.ObstacleDetected,
		Emergency:        r.Emergency,
		Timestamp:        r.RecordedAt,
	})
}

func (r *TelemetryReport) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = TelemetryReport{
		ID:               raw.ID,
		DeviceID:         raw.StickID,
		Position:         Position{Latitude: raw.Latitude, Longitude: raw.Longitude},
		BatteryLevel:     raw.BatteryLevel,
		IsCharging:       raw.IsCharging,
		ObstacleDetected: raw.ObstacleDetected,
		Emergency:        raw.Emergency,
		RecordedAt:       raw.Timestamp,
	}
	return nil
}

// IngestRequest carries the raw device fields. Latitude and Longitude are
// pointers so a missing coordinate is distinguishable from 0.
type IngestRequest struct {
	StickID          string   `json:"stickId"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	BatteryLevel     *float64 `json:"batteryLevel,omitempty"`
	IsCharging       bool     `json:"isCharging"`
	ObstacleDetected bool     `json:"obstacleDetected"`
	Emergency        bool     `json:"emergency"`
}

type Command string

const (
	CommandNone           Command = ""
	CommandClearEmergency Command = "clear_emergency"
)

type HistoryPoint struct {
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
	Time time.Time `json:"time"`
}

// TimeRange bounds are inclusive; nil means unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}
