package notify

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/store"
)

type fakeOwners struct {
	owner *domain.DeviceOwner
	err   error
}

func (f *fakeOwners) GetOwner(ctx context.Context, stickID string) (*domain.DeviceOwner, error) {
	return f.owner, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []store.AlertRecord
}

func (f *fakeRecorder) InsertAlert(ctx context.Context, a store.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, a)
	return nil
}

type fakeNotifier struct {
	name  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Attempt(ctx context.Context, owner domain.DeviceOwner, alert Alert) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeNotifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panicNotifier struct{}

func (panicNotifier) Name() string { return "push" }

func (panicNotifier) Attempt(ctx context.Context, owner domain.DeviceOwner, alert Alert) error {
	panic("boom")
}

func testTask() domain.AlertTask {
	return domain.AlertTask{
		ID:        "7f1e4c52-0d0b-4b8e-9a57-1f3f9d1c2a10",
		DeviceID:  "stick-1",
		Latitude:  12.5,
		Longitude: 77.25,
		RaisedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatchOneChannelFailureDoesNotStopTheOther(t *testing.T) {
	email := &fakeNotifier{name: "email", err: errors.New("smtp down")}
	push := &fakeNotifier{name: "push"}
	rec := &fakeRecorder{}
	owners := &fakeOwners{owner: &domain.DeviceOwner{DeviceID: "stick-1", Email: "a@b.c", PushToken: "tok"}}

	d := NewDispatcher(owners, rec, time.Second, email, push)
	outcomes := d.Dispatch(context.Background(), testTask())

	assert.Equal(t, map[string]Outcome{"email": OutcomeFailed, "push": OutcomeSent}, outcomes)
	assert.Equal(t, 1, email.Calls())
	assert.Equal(t, 1, push.Calls())

	require.Len(t, rec.records, 1)
	assert.Equal(t, "failed", rec.records[0].EmailStatus)
	assert.Equal(t, "sent", rec.records[0].PushStatus)
	assert.Equal(t, "stick-1", rec.records[0].StickID)
}

func TestDispatchRunsChannelsConcurrently(t *testing.T) {
	email := &fakeNotifier{name: "email", delay: 200 * time.Millisecond}
	push := &fakeNotifier{name: "push", delay: 200 * time.Millisecond}
	owners := &fakeOwners{owner: &domain.DeviceOwner{DeviceID: "stick-1"}}

	d := NewDispatcher(owners, nil, time.Second, email, push)

	start := time.Now()
	d.Dispatch(context.Background(), testTask())
	assert.Less(t, time.Since(start), 390*time.Millisecond)
}

func TestDispatchTimesOutSlowChannel(t *testing.T) {
	slow := &fakeNotifier{name: "email", delay: time.Second}
	d := NewDispatcher(&fakeOwners{owner: &domain.DeviceOwner{}}, nil, 50*time.Millisecond, slow)

	outcomes := d.Dispatch(context.Background(), testTask())
	assert.Equal(t, OutcomeFailed, outcomes["email"])
}

func TestDispatchSkipsWithoutDestination(t *testing.T) {
	email := &fakeNotifier{name: "email", err: ErrNoDestination}
	rec := &fakeRecorder{}
	d := NewDispatcher(&fakeOwners{owner: &domain.DeviceOwner{}}, rec, time.Second, email)

	outcomes := d.Dispatch(context.Background(), testTask())
	assert.Equal(t, OutcomeSkipped, outcomes["email"])

	require.Len(t, rec.records, 1)
	assert.Equal(t, "skipped", rec.records[0].EmailStatus)
	assert.Equal(t, "skipped", rec.records[0].PushStatus)
}

func TestDispatchRecoversFromPanickingChannel(t *testing.T) {
	email := &fakeNotifier{name: "email"}
	d := NewDispatcher(&fakeOwners{owner: &domain.DeviceOwner{}}, nil, time.Second, email, panicNotifier{})

	outcomes := d.Dispatch(context.Background(), testTask())
	assert.Equal(t, OutcomeSent, outcomes["email"])
	assert.Equal(t, OutcomeFailed, outcomes["push"])
}

func TestDispatchWithoutOwnerIsNoop(t *testing.T) {
	email := &fakeNotifier{name: "email"}
	rec := &fakeRecorder{}

	d := NewDispatcher(&fakeOwners{}, rec, time.Second, email)
	assert.Nil(t, d.Dispatch(context.Background(), testTask()))

	d = NewDispatcher(&fakeOwners{err: errors.New("db down")}, rec, time.Second, email)
	assert.Nil(t, d.Dispatch(context.Background(), testTask()))

	assert.Zero(t, email.Calls())
	assert.Empty(t, rec.records)
}

type fakeMailSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeMailSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func TestEmailNotifier(t *testing.T) {
	sender := &fakeMailSender{}
	n := &EmailNotifier{from: "alerts@example.com", client: sender}

	err := n.Attempt(context.Background(), domain.DeviceOwner{}, Alert{StickID: "stick-1"})
	assert.ErrorIs(t, err, ErrNoDestination)
	assert.Empty(t, sender.sent)

	owner := domain.DeviceOwner{Email: "owner@example.com", Username: "Asha"}
	require.NoError(t, n.Attempt(context.Background(), owner, Alert{StickID: "stick-1"}))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	subject := msg.GetGenHeader(mail.HeaderSubject)
	require.Len(t, subject, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject[0])
	require.NoError(t, err)
	assert.Equal(t, EmailSubject("stick-1"), decoded)

	parts := msg.GetParts()
	require.Len(t, parts, 1)
	assert.Equal(t, mail.TypeTextHTML, parts[0].GetContentType())
	content, err := parts[0].GetContent()
	require.NoError(t, err)
	assert.Contains(t, string(content), "Hello Asha")
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@example.com"}, rcpts)

	sender.err = errors.New("auth failed")
	assert.Error(t, n.Attempt(context.Background(), owner, Alert{StickID: "stick-1"}))
}

func TestRenderAlertEmail(t *testing.T) {
	owner := domain.DeviceOwner{Username: "Asha", Timezone: "Asia/Kolkata"}
	alert := Alert{
		StickID:   "stick-1",
		Latitude:  12.5,
		Longitude: 77.25,
		RaisedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, alertEmailTemplate.Execute(&buf, newAlertEmailData(owner, alert)))
	body := buf.String()

	assert.Contains(t, body, "Hello Asha")
	assert.Contains(t, body, "Smart Stick stick-1")
	assert.Contains(t, body, "15:30:00 IST")
	assert.Contains(t, body, "https://www.google.com/maps?q=12.5,77.25")
	assert.False(t, strings.Contains(body, "&lt;"), "template must not escape markup")
}

type fakeMessageSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessageSender) Send(ctx context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", f.err
}

func TestPushNotifier(t *testing.T) {
	sender := &fakeMessageSender{}
	n := &PushNotifier{client: sender}

	assert.ErrorIs(t, n.Attempt(context.Background(), domain.DeviceOwner{}, Alert{StickID: "s"}), ErrNoDestination)

	require.NoError(t, n.Attempt(context.Background(), domain.DeviceOwner{PushToken: "tok"}, Alert{StickID: "stick-1"}))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "tok", msg.Token)
	assert.Equal(t, "emergency", msg.Data["type"])
	assert.Equal(t, "stick-1", msg.Data["stickId"])
	assert.Equal(t, "Panic button pressed on Stick stick-1!", msg.Data["body"])
}

func TestAlertMapLink(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps?q=-33.8688,151.2093",
		Alert{Latitude: -33.8688, Longitude: 151.2093}.MapLink())
}
