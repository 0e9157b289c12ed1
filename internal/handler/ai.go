package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/planner"
	"github.com/dukerupert/taskcal/internal/store"
	"github.com/dukerupert/taskcal/internal/suggest"
)

type Suggester interface {
	Suggest(ctx context.Context, userID string, req suggest.Request) suggest.Result
}

type Scheduler interface {
	Schedule(ctx context.Context, userID string, req planner.Request) (*planner.Result, error)
}

type AIHandler struct {
	suggester Suggester
	scheduler Scheduler
	models    ModelCatalog
	notifier  Notifier
	logger    *slog.Logger
}

func NewAIHandler(suggester Suggester, scheduler Scheduler, models ModelCatalog, notifier Notifier, logger *slog.Logger) *AIHandler {
	return &AIHandler{
		suggester: suggester,
		scheduler: scheduler,
		models:    models,
		notifier:  notifierOrNop(notifier),
		logger:    logger,
	}
}

// Suggest handles POST /ai. Backend failures are answered with the fallback
// proposal, so only a malformed request gets a non-200.
func (h *AIHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req suggest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Prompt == "" && req.TaskToReschedule == nil {
		writeError(w, http.StatusBadRequest, "prompt or taskToReschedule is required")
		return
	}

	res := h.suggester.Suggest(r.Context(), auth.UserID(r.Context()), req)
	if res.Fallback {
		w.Header().Set("X-Suggestion-Fallback", "true")
	}
	writeJSON(w, http.StatusOK, res.Value())
}

// Schedule handles POST /ai/schedule: saves a breakdown as a parent task and
// one focus block per subtask.
func (h *AIHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req planner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" || req.Suggestion.SuggestedStartTime.IsZero() || req.Suggestion.SuggestedEndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.Type != "" && !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}

	res, err := h.scheduler.Schedule(r.Context(), userID, req)
	if errors.Is(err, store.ErrInvalidTimeRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("schedule suggestion", "error", err)
		internalError(w)
		return
	}

	h.notifier.Notify(userID, "task", "created", res.Parent.ID)
	for _, s := range res.Subtasks {
		if s.Task != nil {
			h.notifier.Notify(userID, "task", "created", s.Task.ID)
		}
	}

	status := http.StatusCreated
	for _, s := range res.Subtasks {
		if s.Error != "" {
			status = http.StatusMultiStatus
			break
		}
	}
	writeJSON(w, status, res)
}

// Models handles GET /ai/models
func (h *AIHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaultModel": h.models.DefaultModel(),
		"models":       h.models.Models(),
	})
}
