// Package prompt renders the text sent to the language model: the user's
// upcoming schedule and the instruction templates wrapped around it.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
)

// ScheduleWindow is how far ahead the schedule summary looks.
const ScheduleWindow = 7 * 24 * time.Hour

// NoEvents is rendered in place of the schedule when nothing is upcoming.
const NoEvents = "No upcoming events scheduled"

type EventLister interface {
	List(ctx context.Context, userID string, from, to *time.Time) ([]model.CalendarEvent, error)
}

type ContextBuilder struct {
	events EventLister
}

func NewContextBuilder(events EventLister) *ContextBuilder {
	return &ContextBuilder{events: events}
}

// Build summarizes the user's placements starting within ScheduleWindow of now.
func (b *ContextBuilder) Build(ctx context.Context, userID string, now time.Time) (string, error) {
	from := now.UTC()
	to := from.Add(ScheduleWindow)
	events, err := b.events.List(ctx, userID, &from, &to)
	if err != nil {
		return "", fmt.Errorf("list upcoming events: %w", err)
	}
	return FormatSchedule(events), nil
}

// FormatSchedule renders one line per event in the order given.
func FormatSchedule(events []model.CalendarEvent) string {
	if len(events) == 0 {
		return NoEvents
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		var title string
		var typ model.TaskType
		var status model.TaskStatus
		if e.Task != nil {
			title, typ, status = e.Task.Title, e.Task.Type, e.Task.Status
		}
		lines = append(lines, fmt.Sprintf("- %s (%s) from %s to %s [%s]",
			title, typ,
			e.StartTime.UTC().Format(time.RFC3339),
			e.EndTime.UTC().Format(time.RFC3339),
			status,
		))
	}
	return strings.Join(lines, "\n")
}
