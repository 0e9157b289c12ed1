package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultReminderLead = 15 * time.Minute
	DefaultDeadlineLead = time.Hour
	sentRetention       = 7 * 24 * time.Hour
)

// Sender delivers one notification to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

type SchedulerConfig struct {
	Interval     time.Duration
	ReminderLead time.Duration
	DeadlineLead time.Duration
	Location     *time.Location
}

// Scheduler periodically sends reminders for placements about to start and
// pending tasks about to fall due. Each reminder is sent once per user.
type Scheduler struct {
	mu     sync.RWMutex
	sender Sender
	push   *store.PushStore
	events *store.EventStore
	tasks  *store.TaskStore
	cfg    SchedulerConfig
	logger *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(sender Sender, pushStore *store.PushStore, eventStore *store.EventStore, taskStore *store.TaskStore, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = DefaultReminderLead
	}
	if cfg.DeadlineLead <= 0 {
		cfg.DeadlineLead = DefaultDeadlineLead
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		sender: sender,
		push:   pushStore,
		events: eventStore,
		tasks:  taskStore,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce performs a single pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now()
	s.checkEventReminders(ctx, now)
	s.checkDeadlines(ctx, now)

	if err := s.push.CleanupSent(now.Add(-sentRetention)); err != nil {
		s.logger.Warn("cleanup sent notifications", "error", err)
	}
}

func (s *Scheduler) checkEventReminders(ctx context.Context, now time.Time) {
	events, err := s.events.ListStartingBetween(ctx, now, now.Add(s.cfg.ReminderLead))
	if err != nil {
		s.logger.Error("list upcoming events", "error", err)
		return
	}

	for _, ev := range events {
		if ev.Task == nil || ev.Task.Status == model.TaskStatusCompleted {
			continue
		}
		// Keyed by start so a rescheduled event is reminded again.
		refID := fmt.Sprintf("event-%s-%d", ev.ID, ev.StartTime.Unix())
		s.notify(ctx, ev.UserID, model.NotifTypeEventReminder, refID, EventReminder(ev, s.cfg.Location))
	}
}

func (s *Scheduler) checkDeadlines(ctx context.Context, now time.Time) {
	tasks, err := s.tasks.ListDueBetween(ctx, now, now.Add(s.cfg.DeadlineLead))
	if err != nil {
		s.logger.Error("list due tasks", "error", err)
		return
	}

	for _, t := range tasks {
		refID := fmt.Sprintf("deadline-%s-%d", t.ID, t.Deadline.Unix())
		s.notify(ctx, t.UserID, model.NotifTypeDeadline, refID, DeadlineReminder(t, s.cfg.Location))
	}
}

func (s *Scheduler) notify(ctx context.Context, userID, notifType, refID string, payload Payload) {
	sent, err := s.push.WasSent(userID, notifType, refID)
	if err != nil {
		s.logger.Error("check sent", "user_id", userID, "error", err)
		return
	}
	if sent {
		return
	}

	enabled, err := s.push.IsPreferenceEnabled(userID, notifType)
	if err != nil || !enabled {
		return
	}

	subs, err := s.push.ListByUser(userID)
	if err != nil {
		s.logger.Error("list subscriptions", "user_id", userID, "error", err)
		return
	}

	for i := range subs {
		if err := s.sender.Send(ctx, &subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := s.push.DeleteByEndpoint(subs[i].Endpoint); err != nil {
					s.logger.Warn("delete expired subscription", "error", err)
				}
				continue
			}
			s.logger.Warn("send notification", "user_id", userID, "type", notifType, "error", err)
		}
	}

	if err := s.push.RecordSent(userID, notifType, refID); err != nil {
		s.logger.Error("record sent", "user_id", userID, "error", err)
	}
}
