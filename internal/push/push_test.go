package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/taskcal/internal/database"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{VAPIDPublicKey: "a"}).Enabled() {
		t.Error("config without private key should be disabled")
	}
	if !(Config{VAPIDPublicKey: "a", VAPIDPrivateKey: "b"}).Enabled() {
		t.Error("config with both keys should be enabled")
	}
}

// browserSubscription returns a subscription with real client keys so the
// payload can be encrypted.
func browserSubscription(t *testing.T, endpoint string) *model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	secret := make([]byte, 16)
	rand.Read(secret)
	return &model.PushSubscription{
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func TestServiceSend(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"created", http.StatusCreated, nil},
		{"gone", http.StatusGone, ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			pub, priv, _ := GenerateVAPIDKeys()
			svc := NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv})
			svc.SetHTTPClient(srv.Client())

			err := svc.Send(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), Payload{Title: "Hi", Body: "there"})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("send: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("send err = %v, want %v", err, tt.wantErr)
			}
			if gotAuth == "" {
				t.Error("expected VAPID Authorization header")
			}
		})
	}
}

type fakeSender struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (f *fakeSender) Send(_ context.Context, _ *model.PushSubscription, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return f.err
}

type schedulerFixture struct {
	sched  *Scheduler
	sender *fakeSender
	push   *store.PushStore
	tasks  *store.TaskStore
	userID string
}

var tickAt = time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC)

func setupScheduler(t *testing.T) *schedulerFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := store.NewUserStore(db).Create("alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ps := store.NewPushStore(db)
	if _, err := ps.CreateSubscription(user.ID, "https://push.example/1", "p256", "auth", "laptop"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	sender := &fakeSender{}
	ts := store.NewTaskStore(db)
	sched := NewScheduler(sender, ps, store.NewEventStore(db), ts, SchedulerConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sched.now = func() time.Time { return tickAt }

	return &schedulerFixture{sched: sched, sender: sender, push: ps, tasks: ts, userID: user.ID}
}

func (f *schedulerFixture) addTask(t *testing.T, title string, start time.Time, deadline *time.Time) {
	t.Helper()
	_, err := f.tasks.Create(context.Background(), f.userID, store.NewTask{
		Title:     title,
		Type:      model.TaskTypeTask,
		Status:    model.TaskStatusPending,
		Deadline:  deadline,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func TestSchedulerEventReminderOnce(t *testing.T) {
	f := setupScheduler(t)
	f.addTask(t, "Standup", tickAt.Add(10*time.Minute), nil)
	f.addTask(t, "Later", tickAt.Add(3*time.Hour), nil)

	f.sched.RunOnce(context.Background())
	f.sched.RunOnce(context.Background())

	if len(f.sender.payloads) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.payloads))
	}
	if got := f.sender.payloads[0].Body; got != "Standup starts at 09:00" {
		t.Errorf("body = %q", got)
	}
}

func TestSchedulerDeadline(t *testing.T) {
	f := setupScheduler(t)
	due := tickAt.Add(30 * time.Minute)
	f.addTask(t, "File taxes", tickAt.Add(24*time.Hour), &due)

	f.sched.RunOnce(context.Background())

	if len(f.sender.payloads) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.payloads))
	}
	if got := f.sender.payloads[0].Title; got != "Deadline approaching" {
		t.Errorf("title = %q", got)
	}
}

func TestSchedulerRespectsPreference(t *testing.T) {
	f := setupScheduler(t)
	if err := f.push.SetPreference(f.userID, model.NotifTypeEventReminder, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	f.addTask(t, "Standup", tickAt.Add(10*time.Minute), nil)

	f.sched.RunOnce(context.Background())

	if len(f.sender.payloads) != 0 {
		t.Errorf("sent = %d, want 0 with reminders off", len(f.sender.payloads))
	}
}

func TestSchedulerDropsExpiredSubscription(t *testing.T) {
	f := setupScheduler(t)
	f.sender.err = ErrExpired
	f.addTask(t, "Standup", tickAt.Add(10*time.Minute), nil)

	f.sched.RunOnce(context.Background())

	subs, err := f.push.ListByUser(f.userID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0 after 410", len(subs))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	f := setupScheduler(t)
	f.sched.cfg.Interval = 10 * time.Millisecond
	f.sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	f.sched.Stop()
}

func TestReminderPayloads(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)

	ev := model.CalendarEvent{ID: "ev1", TaskID: "t1", StartTime: start, Task: &model.Task{Title: "Standup"}}
	p := EventReminder(ev, loc)
	if p.Title != "Upcoming: Standup" || p.Body != "Standup starts at 09:30" {
		t.Errorf("event payload = %+v", p)
	}
	if p.Tag != "event-ev1" || p.TaskID != "t1" {
		t.Errorf("event tag/task = %q/%q", p.Tag, p.TaskID)
	}

	due := start.Add(time.Hour)
	p = DeadlineReminder(model.Task{ID: "t2", Title: "File taxes", Deadline: &due}, loc)
	if p.Body != "File taxes is due at 10:30" || p.Tag != "deadline-t2" || p.TaskID != "t2" {
		t.Errorf("deadline payload = %+v", p)
	}

	p = DeadlineReminder(model.Task{ID: "t3", Title: "Undated"}, loc)
	if p.Body != "Undated is due soon" {
		t.Errorf("undated body = %q", p.Body)
	}
}
