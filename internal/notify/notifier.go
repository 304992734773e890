// Package notify delivers emergency alerts to a stick owner over
// independent channels. Channel failures never reach the ingest path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smart-stick/tracker/internal/domain"
)

// ErrNoDestination means the owner has nothing configured for a channel.
// It is a skip, not a failure.
var ErrNoDestination = errors.New("no destination")

type Alert struct {
	StickID   string
	Latitude  float64
	Longitude float64
	RaisedAt  time.Time
}

func (a Alert) MapLink() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", a.Latitude, a.Longitude)
}

type Notifier interface {
	Name() string
	Attempt(ctx context.Context, owner domain.DeviceOwner, alert Alert) error
}

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)
