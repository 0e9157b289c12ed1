package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukerupert/taskcal/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON the service worker receives. Tag collapses repeat
// notifications for the same placement or task on the device.
type Payload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url,omitempty"`
	Tag    string `json:"tag,omitempty"`
	TaskID string `json:"taskId,omitempty"`
}

// EventReminder announces a placement that is about to start.
func EventReminder(ev model.CalendarEvent, loc *time.Location) Payload {
	p := Payload{
		URL:    "/calendar",
		Tag:    "event-" + ev.ID,
		TaskID: ev.TaskID,
	}
	title := "Scheduled task"
	if ev.Task != nil {
		title = ev.Task.Title
	}
	p.Title = "Upcoming: " + title
	p.Body = fmt.Sprintf("%s starts at %s", title, ev.StartTime.In(loc).Format("15:04"))
	return p
}

// DeadlineReminder announces a pending task whose deadline is near.
func DeadlineReminder(t model.Task, loc *time.Location) Payload {
	p := Payload{
		Title:  "Deadline approaching",
		URL:    "/tasks",
		Tag:    "deadline-" + t.ID,
		TaskID: t.ID,
	}
	if t.Deadline != nil {
		p.Body = fmt.Sprintf("%s is due at %s", t.Title, t.Deadline.In(loc).Format("15:04"))
	} else {
		p.Body = t.Title + " is due soon"
	}
	return p
}

// TestPayload is sent by the subscription test endpoint.
func TestPayload() Payload {
	return Payload{
		Title: "Test Notification",
		Body:  "Task reminders are working!",
		URL:   "/",
		Tag:   "test",
	}
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	httpClient webpush.HTTPClient
}

// NewService builds a sender from cfg. Callers check cfg.Enabled first.
func NewService(cfg Config) *Service {
	subscriber := cfg.Subscriber
	if subscriber == "" {
		subscriber = "mailto:noreply@taskcal.local"
	}
	return &Service{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: subscriber,
	}
}

// SetHTTPClient overrides the client used to reach push services.
func (s *Service) SetHTTPClient(c *http.Client) {
	s.httpClient = c
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send sends a push notification to a subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
