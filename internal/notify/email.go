package notify

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"

	"smart-stick/tracker/internal/domain"
)

const emailTimeout = 10 * time.Second

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailNotifier struct {
	from   string
	client mailSender
}

// NewEmailNotifier sends over implicit TLS with SMTP AUTH PLAIN, the way
// Gmail app passwords expect on port 465.
func NewEmailNotifier(host string, port int, user, pass string) (*EmailNotifier, error) {
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user),
		mail.WithPassword(pass),
		mail.WithTimeout(emailTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &EmailNotifier{from: user, client: client}, nil
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Attempt(ctx context.Context, owner domain.DeviceOwner, alert Alert) error {
	if owner.Email == "" {
		return ErrNoDestination
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat("Smart Stick Alert System", n.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(owner.Email); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(EmailSubject(alert.StickID))
	if err := msg.SetBodyHTMLTemplate(alertEmailTemplate, newAlertEmailData(owner, alert)); err != nil {
		return fmt.Errorf("render alert email: %w", err)
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", owner.Email, err)
	}
	return nil
}

func EmailSubject(stickID string) string {
	return "🚨 EMERGENCY ALERT: Smart Stick " + stickID
}

var alertEmailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f4f4f4; padding: 20px;">
  <div style="max-width: 600px; margin: auto; background: #ffffff; border-radius: 8px; overflow: hidden;">
    <div style="background: #d32f2f; color: #ffffff; padding: 16px 24px;">
      <h2 style="margin: 0;">Emergency Alert</h2>
    </div>
    <div style="padding: 24px;">
      <p>Hello {{.Name}},</p>
      <p>The panic button was pressed on <strong>Smart Stick {{.StickID}}</strong>.</p>
      <table style="border-collapse: collapse;">
        <tr><td style="padding: 4px 12px 4px 0;"><strong>Time</strong></td><td>{{.Time}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0;"><strong>Latitude</strong></td><td>{{.Latitude}}</td></tr>
        <tr><td style="padding: 4px 12px 4px 0;"><strong>Longitude</strong></td><td>{{.Longitude}}</td></tr>
      </table>
      <p style="margin-top: 24px;">
        <a href="{{.MapLink}}" style="background: #d32f2f; color: #ffffff; padding: 10px 18px; border-radius: 4px; text-decoration: none;">View location on map</a>
      </p>
      <p style="color: #777777; font-size: 12px;">Please check on the user immediately.</p>
    </div>
  </div>
</body>
</html>`))

type alertEmailData struct {
	Name      string
	StickID   string
	Time      string
	Latitude  float64
	Longitude float64
	MapLink   template.URL
}

func newAlertEmailData(owner domain.DeviceOwner, alert Alert) alertEmailData {
	name := owner.Username
	if name == "" {
		name = "there"
	}
	return alertEmailData{
		Name:      name,
		StickID:   alert.StickID,
		Time:      alert.RaisedAt.In(owner.Location()).Format("Mon, 02 Jan 2006 15:04:05 MST"),
		Latitude:  alert.Latitude,
		Longitude: alert.Longitude,
		MapLink:   template.URL(alert.MapLink()),
	}
}
