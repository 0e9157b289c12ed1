package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/prompt"
)

// Request is the body of a suggestion call. A non-nil TaskToReschedule asks
// for a new slot; otherwise Prompt is broken down.
type Request struct {
	Prompt           string       `json:"prompt"`
	TaskToReschedule *prompt.Task `json:"taskToReschedule"`
}

type ScheduleBuilder interface {
	Build(ctx context.Context, userID string, now time.Time) (string, error)
}

type PreferenceGetter interface {
	Get(userID string) (*model.AIPreferences, error)
}

// Completer sends a prompt to the backend serving model.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

type Service struct {
	schedule ScheduleBuilder
	prefs    PreferenceGetter
	llm      Completer
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(schedule ScheduleBuilder, prefs PreferenceGetter, llm Completer, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		schedule: schedule,
		prefs:    prefs,
		llm:      llm,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Suggest never fails: any problem reaching or understanding the model is
// logged and answered with the fallback proposal.
func (s *Service) Suggest(ctx context.Context, userID string, req Request) Result {
	now := s.now()
	res, err := s.suggest(ctx, userID, req, now)
	if err == nil {
		return res
	}

	s.logger.Warn("suggestion failed, using fallback", "user_id", userID, "reschedule", req.TaskToReschedule != nil, "error", err)
	if req.TaskToReschedule != nil {
		return Result{Reschedule: FallbackReschedule(now), Fallback: true}
	}
	return Result{Breakdown: FallbackBreakdown(req.Prompt, now), Fallback: true}
}

func (s *Service) suggest(ctx context.Context, userID string, req Request, now time.Time) (Result, error) {
	prefs, err := s.prefs.Get(userID)
	if err != nil {
		return Result{}, fmt.Errorf("load preferences: %w", err)
	}
	if prefs == nil {
		prefs = &model.AIPreferences{}
	}

	schedule, err := s.schedule.Build(ctx, userID, now)
	if err != nil {
		return Result{}, fmt.Errorf("build schedule context: %w", err)
	}

	text, err := prompt.Compose(prompt.Input{
		Now:            now,
		Location:       s.loc,
		WorkingHours:   prefs.WorkingHours,
		PreferredTimes: prefs.PreferredTimes,
		Schedule:       schedule,
		Request:        req.Prompt,
		Task:           req.TaskToReschedule,
	})
	if err != nil {
		return Result{}, err
	}

	out, err := s.llm.Complete(ctx, prefs.SelectedModel, text)
	if err != nil {
		return Result{}, fmt.Errorf("complete: %w", err)
	}

	if req.TaskToReschedule != nil {
		r, err := ParseReschedule(out, s.loc)
		if err != nil {
			return Result{}, err
		}
		return Result{Reschedule: r}, nil
	}
	b, err := ParseBreakdown(out, s.loc)
	if err != nil {
		return Result{}, err
	}
	return Result{Breakdown: b}, nil
}
