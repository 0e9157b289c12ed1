package model

import (
	"encoding/json"
	"time"
)

// TimeLayout is how task and placement instants appear on the wire: UTC with
// exactly three fractional digits, the form browsers produce with
// Date.toISOString.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

type TaskType string

const (
	TaskTypeTask       TaskType = "TASK"
	TaskTypeMeeting    TaskType = "MEETING"
	TaskTypeReminder   TaskType = "REMINDER"
	TaskTypeDeadline   TaskType = "DEADLINE"
	TaskTypeFocusBlock TaskType = "FOCUS_BLOCK"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeTask, TaskTypeMeeting, TaskTypeReminder, TaskTypeDeadline, TaskTypeFocusBlock:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Task is a unit of work. StartTime and EndTime mirror the placement when one
// exists so clients need not dig into CalendarEvent.
type Task struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Title         string         `json:"title"`
	Description   *string        `json:"description"`
	Type          TaskType       `json:"type"`
	Status        TaskStatus     `json:"status"`
	Deadline      *time.Time     `json:"deadline"`
	CompletedAt   *time.Time     `json:"completedAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	StartTime     *time.Time     `json:"startTime,omitempty"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	CalendarEvent *CalendarEvent `json:"calendarEvent,omitempty"`
}

// CalendarEvent is the placement of exactly one task on the calendar.
type CalendarEvent struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	UserID     string    `json:"userId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	ExternalID *string   `json:"externalId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Task       *Task     `json:"task,omitempty"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		Deadline    *string `json:"deadline"`
		CompletedAt *string `json:"completedAt"`
		CreatedAt   string  `json:"createdAt"`
		UpdatedAt   string  `json:"updatedAt"`
		StartTime   *string `json:"startTime,omitempty"`
		EndTime     *string `json:"endTime,omitempty"`
	}{
		plain:       plain(t),
		Deadline:    formatTimePtr(t.Deadline),
		CompletedAt: formatTimePtr(t.CompletedAt),
		CreatedAt:   FormatTime(t.CreatedAt),
		UpdatedAt:   FormatTime(t.UpdatedAt),
		StartTime:   formatTimePtr(t.StartTime),
		EndTime:     formatTimePtr(t.EndTime),
	})
}

func (e CalendarEvent) MarshalJSON() ([]byte, error) {
	type plain CalendarEvent
	return json.Marshal(struct {
		plain
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{
		plain:     plain(e),
		StartTime: FormatTime(e.StartTime),
		EndTime:   FormatTime(e.EndTime),
		CreatedAt: FormatTime(e.CreatedAt),
		UpdatedAt: FormatTime(e.UpdatedAt),
	})
}
