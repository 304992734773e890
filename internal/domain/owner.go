package domain

import "time"

const DefaultTimezone = "UTC"

// DeviceOwner is the account record bound to a stick. PendingClear is set by
// a client clear request and consumed by the next emergency report.
type DeviceOwner struct {
	DeviceID     string
	Username     string
	Email        string
	PushToken    string
	Timezone     string
	PendingClear bool
}

func (o DeviceOwner) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AlertTask is the unit handed to the notification queue.
type AlertTask struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"stickId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	RaisedAt  time.Time `json:"raisedAt"`

	// Receipt is the raw queued payload, set when the task is read from a
	// queue and used to acknowledge it.
	Receipt string `json:"-"`
}

type EventType string

const (
	EventLocationUpdate   EventType = "locationUpdate"
	EventEmergencyCleared EventType = "emergencyCleared"
)

// Event is a realtime message scoped to one device room.
type Event struct {
	Type EventType        `json:"type"`
	Room string           `json:"room"`
	Data *TelemetryReport `json:"data,omitempty"`
}
