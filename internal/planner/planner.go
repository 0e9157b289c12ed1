// Package planner writes an accepted breakdown to the calendar: the parent
// task at the suggested slot, then one focus block per subtask.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
	"github.com/dukerupert/taskcal/internal/suggest"
)

const (
	SubtaskBuffer     = 20 * time.Minute
	MinSubtaskMinutes = 15
	defaultTotal      = 60
)

type TaskCreator interface {
	Create(ctx context.Context, userID string, in store.NewTask) (*model.Task, error)
}

type Request struct {
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	Type        model.TaskType    `json:"type"`
	Suggestion  suggest.Breakdown `json:"suggestion"`
}

type ItemResult struct {
	Title string      `json:"title"`
	Task  *model.Task `json:"task,omitempty"`
	Error string      `json:"error,omitempty"`
}

type Result struct {
	Parent   *model.Task  `json:"parent"`
	Subtasks []ItemResult `json:"subtasks"`
}

// Slot is the computed placement of one subtask.
type Slot struct {
	Index   int
	Title   string
	Start   time.Time
	End     time.Time
	Minutes int
}

type Planner struct {
	tasks  TaskCreator
	logger *slog.Logger
}

func New(tasks TaskCreator, logger *slog.Logger) *Planner {
	return &Planner{tasks: tasks, logger: logger}
}

// Layout places subtasks back to back from the suggested start, separated by
// SubtaskBuffer. A subtask without an estimate gets an even share of the total
// after buffers, never less than MinSubtaskMinutes.
func Layout(b suggest.Breakdown) []Slot {
	n := len(b.Subtasks)
	if n == 0 {
		return nil
	}
	total := b.TotalEstimatedDuration
	if total <= 0 {
		total = defaultTotal
	}
	even := (total - int(SubtaskBuffer/time.Minute)*(n-1)) / n
	if even < MinSubtaskMinutes {
		even = MinSubtaskMinutes
	}

	slots := make([]Slot, 0, n)
	cursor := b.SuggestedStartTime.UTC()
	for i, st := range b.Subtasks {
		minutes := st.EstimatedDuration
		if minutes <= 0 {
			minutes = even
		}
		end := cursor.Add(time.Duration(minutes) * time.Minute)
		slots = append(slots, Slot{Index: i, Title: st.Title, Start: cursor, End: end, Minutes: minutes})
		cursor = end.Add(SubtaskBuffer)
	}
	return slots
}

// ParentDeadline mirrors the calendar convention: a DEADLINE is due when its
// slot ends, a TASK when it starts, anything else has no deadline.
func ParentDeadline(typ model.TaskType, start, end time.Time) *time.Time {
	switch typ {
	case model.TaskTypeDeadline:
		return &end
	case model.TaskTypeTask:
		return &start
	}
	return nil
}

// Schedule creates the parent, then each subtask in order. Subtask failures
// are logged and reported per item; nothing already written is undone.
func (p *Planner) Schedule(ctx context.Context, userID string, req Request) (*Result, error) {
	typ := req.Type
	if typ == "" {
		typ = model.TaskTypeTask
	}
	b := req.Suggestion
	start, end := b.SuggestedStartTime.UTC(), b.SuggestedEndTime.UTC()

	parent, err := p.tasks.Create(ctx, userID, store.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Type:        typ,
		Status:      model.TaskStatusPending,
		Deadline:    ParentDeadline(typ, start, end),
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		return nil, fmt.Errorf("create parent task: %w", err)
	}

	slots := Layout(b)
	res := &Result{Parent: parent, Subtasks: make([]ItemResult, 0, len(slots))}
	for _, s := range slots {
		title := fmt.Sprintf("%s - %s", req.Title, s.Title)
		desc := fmt.Sprintf("Subtask %d of %d: %s\n\nParent Task: %s\nEstimated Duration: %d minutes",
			s.Index+1, len(slots), s.Title, req.Title, s.Minutes)

		task, err := p.tasks.Create(ctx, userID, store.NewTask{
			Title:       title,
			Description: &desc,
			Type:        model.TaskTypeFocusBlock,
			Status:      model.TaskStatusPending,
			StartTime:   s.Start,
			EndTime:     s.End,
		})
		if err != nil {
			p.logger.Warn("create subtask failed", "user_id", userID, "parent_id", parent.ID, "index", s.Index, "error", err)
			res.Subtasks = append(res.Subtasks, ItemResult{Title: title, Error: "failed to create subtask"})
			continue
		}
		res.Subtasks = append(res.Subtasks, ItemResult{Title: title, Task: task})
	}
	return res, nil
}
