// Package gcal mirrors a user's placements into their Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

const (
	DefaultCalendarID = "primary"
	taskIDProperty    = "taskcal_task_id"
)

var (
	ErrNotConfigured = errors.New("google calendar export is not configured")
	ErrNotLinked     = errors.New("no google account linked; sign in with Google again")
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionFailed  = "failed"
)

// ItemResult is the outcome of exporting one placement.
type ItemResult struct {
	EventID    string `json:"eventId"`
	TaskID     string `json:"taskId"`
	Title      string `json:"title"`
	ExternalID string `json:"externalId,omitempty"`
	Action     string `json:"action"`
	Error      string `json:"error,omitempty"`
}

type Exporter struct {
	oauth      *oauth2.Config
	tokens     *store.OAuthTokenStore
	events     *store.EventStore
	calendarID string
	opts       []option.ClientOption
	logger     *slog.Logger
	now        func() time.Time
}

// NewExporter returns an exporter writing to calendarID. Extra client options
// are appended when the calendar service is built.
func NewExporter(cfg *oauth2.Config, tokens *store.OAuthTokenStore, events *store.EventStore, calendarID string, logger *slog.Logger, opts ...option.ClientOption) *Exporter {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	return &Exporter{
		oauth:      cfg,
		tokens:     tokens,
		events:     events,
		calendarID: calendarID,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Exporter) service(ctx context.Context, userID string) (*calendar.Service, func(), error) {
	if e.oauth == nil {
		return nil, nil, ErrNotConfigured
	}
	stored, err := e.tokens.Get(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load oauth token: %w", err)
	}
	if stored == nil {
		return nil, nil, ErrNotLinked
	}

	src := oauth2.ReuseTokenSource(auth.TokenFromModel(stored), e.oauth.TokenSource(ctx, auth.TokenFromModel(stored)))
	// Persist a refreshed token once the export is done.
	persist := func() {
		tok, err := src.Token()
		if err != nil || !auth.TokenChanged(stored, tok) {
			return
		}
		if err := e.tokens.Save(auth.TokenToModel(userID, tok)); err != nil {
			e.logger.Warn("save refreshed token", "user_id", userID, "error", err)
		}
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}, e.opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, persist, nil
}

// Export pushes every placement that has not yet ended. Placements already
// exported are patched in place; one whose remote event has disappeared is
// inserted again. Each placement succeeds or fails on its own.
func (e *Exporter) Export(ctx context.Context, userID string) ([]ItemResult, error) {
	srv, persist, err := e.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer persist()

	events, err := e.events.ListEndingAfter(ctx, userID, e.now())
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}

	results := make([]ItemResult, 0, len(events))
	for _, ev := range events {
		res := ItemResult{EventID: ev.ID, TaskID: ev.TaskID}
		if ev.Task != nil {
			res.Title = ev.Task.Title
		}

		remote, action, err := e.exportOne(ctx, srv, ev)
		if err != nil {
			e.logger.Warn("export event", "user_id", userID, "event_id", ev.ID, "error", err)
			res.Action = ActionFailed
			res.Error = "failed to export event"
			results = append(results, res)
			continue
		}
		res.Action = action
		res.ExternalID = remote.Id

		if ev.ExternalID == nil || *ev.ExternalID != remote.Id {
			if err := e.events.SetExternalID(ctx, userID, ev.ID, remote.Id); err != nil {
				e.logger.Warn("save external id", "event_id", ev.ID, "error", err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Exporter) exportOne(ctx context.Context, srv *calendar.Service, ev model.CalendarEvent) (*calendar.Event, string, error) {
	body := toCalendarEvent(ev)

	if ev.ExternalID != nil && *ev.ExternalID != "" {
		updated, err := srv.Events.Patch(e.calendarID, *ev.ExternalID, body).Context(ctx).Do()
		if err == nil {
			return updated, ActionUpdated, nil
		}
		if !isGone(err) {
			return nil, "", err
		}
	}

	created, err := srv.Events.Insert(e.calendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, "", err
	}
	return created, ActionCreated, nil
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}

func toCalendarEvent(ev model.CalendarEvent) *calendar.Event {
	out := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: ev.StartTime.UTC().Format(time.RFC3339)},
		End:   &calendar.EventDateTime{DateTime: ev.EndTime.UTC().Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: ev.TaskID},
		},
	}
	if ev.Task != nil {
		out.Summary = ev.Task.Title
		if ev.Task.Description != nil {
			out.Description = *ev.Task.Description
		}
		if ev.Task.Status == model.TaskStatusCompleted {
			out.Summary = "✓ " + out.Summary
		}
	}
	return out
}
