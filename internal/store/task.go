package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
)

// ErrInvalidTimeRange is returned when a placement would not start before it ends.
var ErrInvalidTimeRange = errors.New("start time must be before end time")

// Optional carries a field of a partial update. Set distinguishes an absent
// field from an explicit null (Value == nil).
type Optional[T any] struct {
	Set   bool
	Value *T
}

type NewTask struct {
	Title       string
	Description *string
	Type        model.TaskType
	Status      model.TaskStatus
	Deadline    *time.Time
	CompletedAt *time.Time
	StartTime   time.Time
	EndTime     time.Time
}

type TaskUpdate struct {
	Title       *string
	Description Optional[string]
	Type        *model.TaskType
	Status      *model.TaskStatus
	Deadline    Optional[time.Time]
	CompletedAt Optional[time.Time]
	// The placement moves only when both are given.
	StartTime *time.Time
	EndTime   *time.Time
}

type TaskStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db, now: now}
}

const taskSelect = `SELECT t.id, t.user_id, t.title, t.description, t.type, t.status, t.deadline, t.completed_at, t.created_at, t.updated_at,
	e.id, e.start_time, e.end_time, e.external_id, e.created_at, e.updated_at
	FROM tasks t LEFT JOIN calendar_events e ON e.task_id = t.id`

func scanTask(row scanner) (*model.Task, error) {
	var t model.Task
	var desc, eventID, externalID sql.NullString
	var deadline, completedAt, start, end, eventCreated, eventUpdated sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &t.Type, &t.Status, &deadline, &completedAt, &t.CreatedAt, &t.UpdatedAt,
		&eventID, &start, &end, &externalID, &eventCreated, &eventUpdated)
	if err != nil {
		return nil, err
	}
	t.Description = stringPtr(desc)
	t.Deadline = timePtr(deadline)
	t.CompletedAt = timePtr(completedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if eventID.Valid {
		ev := &model.CalendarEvent{
			ID:         eventID.String,
			TaskID:     t.ID,
			UserID:     t.UserID,
			StartTime:  start.Time.UTC(),
			EndTime:    end.Time.UTC(),
			ExternalID: stringPtr(externalID),
			CreatedAt:  eventCreated.Time.UTC(),
			UpdatedAt:  eventUpdated.Time.UTC(),
		}
		t.CalendarEvent = ev
		t.StartTime = &ev.StartTime
		t.EndTime = &ev.EndTime
	}
	return &t, nil
}

// Create inserts the task and its placement atomically.
func (s *TaskStore) Create(ctx context.Context, userID string, in NewTask) (*model.Task, error) {
	if !in.StartTime.Before(in.EndTime) {
		return nil, ErrInvalidTimeRange
	}

	ts := s.now()
	taskID := newID()
	completedAt := in.CompletedAt
	if in.Status == model.TaskStatusCompleted && completedAt == nil {
		completedAt = &ts
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, type, status, deadline, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, userID, in.Title, in.Description, in.Type, in.Status, nullTime(in.Deadline), nullTime(completedAt), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO calendar_events (id, task_id, user_id, start_time, end_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), taskID, userID, in.StartTime.UTC(), in.EndTime.UTC(), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task: %w", err)
	}
	return s.GetByID(ctx, userID, taskID)
}

func (s *TaskStore) GetByID(ctx context.Context, userID, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE t.user_id = ? ORDER BY t.created_at ASC, t.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update applies a partial update. Moving to COMPLETED without an explicit
// completedAt stamps the current time; moving to PENDING clears it. Returns
// nil when the task does not exist for the user.
func (s *TaskStore) Update(ctx context.Context, userID, id string, u TaskUpdate) (*model.Task, error) {
	movePlacement := u.StartTime != nil && u.EndTime != nil
	if movePlacement && !u.StartTime.Before(*u.EndTime) {
		return nil, ErrInvalidTimeRange
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanTask(tx.QueryRowContext(ctx, taskSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	ts := s.now()
	if u.Title != nil {
		cur.Title = *u.Title
	}
	if u.Description.Set {
		cur.Description = u.Description.Value
	}
	if u.Type != nil {
		cur.Type = *u.Type
	}
	if u.Deadline.Set {
		cur.Deadline = u.Deadline.Value
	}
	if u.CompletedAt.Set {
		cur.CompletedAt = u.CompletedAt.Value
	}
	if u.Status != nil {
		cur.Status = *u.Status
		switch cur.Status {
		case model.TaskStatusCompleted:
			if cur.CompletedAt == nil {
				cur.CompletedAt = &ts
			}
		case model.TaskStatusPending:
			cur.CompletedAt = nil
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, type = ?, status = ?, deadline = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		cur.Title, cur.Description, cur.Type, cur.Status, nullTime(cur.Deadline), nullTime(cur.CompletedAt), ts, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if movePlacement {
		if cur.CalendarEvent == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO calendar_events (id, task_id, user_id, start_time, end_time, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				newID(), id, userID, u.StartTime.UTC(), u.EndTime.UTC(), ts, ts,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE calendar_events SET start_time = ?, end_time = ?, updated_at = ? WHERE task_id = ? AND user_id = ?`,
				u.StartTime.UTC(), u.EndTime.UTC(), ts, id, userID,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("update calendar event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task update: %w", err)
	}
	return s.GetByID(ctx, userID, id)
}

// Delete removes the placement and then the task in one transaction and
// returns the task as it was. Returns nil when nothing matched.
func (s *TaskStore) Delete(ctx context.Context, userID, id string) (*model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, taskSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE task_id = ? AND user_id = ?`, id, userID); err != nil {
		return nil, fmt.Errorf("delete calendar event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task delete: %w", err)
	}
	t.CalendarEvent = nil
	t.StartTime = nil
	t.EndTime = nil
	return t, nil
}

// DeleteAllForUser clears every placement and then every task the user owns.
func (s *TaskStore) DeleteAllForUser(ctx context.Context, userID string) (events, tasks int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE user_id = ?`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete calendar events: %w", err)
	}
	events, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete tasks: %w", err)
	}
	tasks, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit clear: %w", err)
	}
	return events, tasks, nil
}

// ListDueBetween returns pending tasks of every user whose deadline falls in
// [from, to).
func (s *TaskStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		taskSelect+` WHERE t.status = ? AND t.deadline >= ? AND t.deadline < ? ORDER BY t.deadline ASC`,
		model.TaskStatusPending, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
