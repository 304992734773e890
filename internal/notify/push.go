package notify

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"smart-stick/tracker/internal/domain"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type PushNotifier struct {
	client messageSender
}

// NewPushNotifier builds an FCM client from inline service account JSON,
// falling back to a credentials file.
func NewPushNotifier(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*PushNotifier, error) {
	creds := []byte(serviceAccountJSON)
	if len(creds) == 0 {
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read firebase credentials: %w", err)
		}
		creds = b
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(creds))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &PushNotifier{client: client}, nil
}

func (n *PushNotifier) Name() string { return "push" }

func (n *PushNotifier) Attempt(ctx context.Context, owner domain.DeviceOwner, alert Alert) error {
	if owner.PushToken == "" {
		return ErrNoDestination
	}

	if _, err := n.client.Send(ctx, pushMessage(owner.PushToken, alert)); err != nil {
		return fmt.Errorf("send push for %s: %w", alert.StickID, err)
	}
	return nil
}

// pushMessage is data-only so the companion app renders it even when
// backgrounded.
func pushMessage(token string, alert Alert) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Data: map[string]string{
			"title":   "🚨 EMERGENCY ALERT",
			"body":    fmt.Sprintf("Panic button pressed on Stick %s!", alert.StickID),
			"stickId": alert.StickID,
			"type":    "emergency",
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
}
