package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventSelect = `SELECT e.id, e.task_id, e.user_id, e.start_time, e.end_time, e.external_id, e.created_at, e.updated_at,
	t.title, t.description, t.type, t.status, t.deadline, t.completed_at, t.created_at, t.updated_at
	FROM calendar_events e JOIN tasks t ON t.id = e.task_id`

func scanEvent(row scanner) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	var t model.Task
	var externalID, desc sql.NullString
	var deadline, completedAt sql.NullTime
	err := row.Scan(&e.ID, &e.TaskID, &e.UserID, &e.StartTime, &e.EndTime, &externalID, &e.CreatedAt, &e.UpdatedAt,
		&t.Title, &desc, &t.Type, &t.Status, &deadline, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.ExternalID = stringPtr(externalID)

	t.ID = e.TaskID
	t.UserID = e.UserID
	t.Description = stringPtr(desc)
	t.Deadline = timePtr(deadline)
	t.CompletedAt = timePtr(completedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	e.Task = &t
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]model.CalendarEvent, error) {
	events := []model.CalendarEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// List returns the user's placements with their tasks, ascending by start.
// A nil bound leaves that side of the range open; bounds apply to start time.
func (s *EventStore) List(ctx context.Context, userID string, from, to *time.Time) ([]model.CalendarEvent, error) {
	where := []string{"e.user_id = ?"}
	args := []any{userID}
	if from != nil {
		where = append(where, "e.start_time >= ?")
		args = append(args, from.UTC())
	}
	if to != nil {
		where = append(where, "e.start_time <= ?")
		args = append(args, to.UTC())
	}

	rows, err := s.db.QueryContext(ctx,
		eventSelect+` WHERE `+strings.Join(where, " AND ")+` ORDER BY e.start_time ASC, e.id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *EventStore) GetByTaskID(ctx context.Context, userID, taskID string) (*model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, eventSelect+` WHERE e.task_id = ? AND e.user_id = ?`, taskID, userID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	return e, nil
}

// Reschedule moves the placement of the given task. Returns nil when the task
// has no placement owned by the user.
func (s *EventStore) Reschedule(ctx context.Context, userID, taskID string, start, end time.Time) (*model.CalendarEvent, error) {
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events SET start_time = ?, end_time = ?, updated_at = ? WHERE task_id = ? AND user_id = ?`,
		start.UTC(), end.UTC(), now(), taskID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("reschedule calendar event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetByTaskID(ctx, userID, taskID)
}

// SetExternalID records the id of the mirrored event in an external calendar.
func (s *EventStore) SetExternalID(ctx context.Context, userID, id, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events SET external_id = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		externalID, now(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("set external id: %w", err)
	}
	return nil
}

// ListEndingAfter returns a user's placements still running or yet to start at t.
func (s *EventStore) ListEndingAfter(ctx context.Context, userID string, t time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		eventSelect+` WHERE e.user_id = ? AND e.end_time > ? ORDER BY e.start_time ASC, e.id ASC`,
		userID, t.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list calendar events ending after: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListStartingBetween returns placements of every user starting in [from, to).
func (s *EventStore) ListStartingBetween(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		eventSelect+` WHERE e.start_time >= ? AND e.start_time < ? ORDER BY e.start_time ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list calendar events by start: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}
