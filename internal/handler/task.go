package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/store"
)

type TaskHandler struct {
	tasks    *store.TaskStore
	events   *store.EventStore
	notifier Notifier
	logger   *slog.Logger
}

func NewTaskHandler(tasks *store.TaskStore, events *store.EventStore, notifier Notifier, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		events:   events,
		notifier: notifierOrNop(notifier),
		logger:   logger,
	}
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Deadline    *string `json:"deadline"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
}

func (req createTaskRequest) toNewTask() (store.NewTask, string) {
	if req.Title == "" || req.Type == "" || req.Status == "" || req.StartTime == "" || req.EndTime == "" {
		return store.NewTask{}, "Missing required fields"
	}
	in := store.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Type:        model.TaskType(req.Type),
		Status:      model.TaskStatus(req.Status),
	}
	if !in.Type.Valid() {
		return in, "invalid type"
	}
	if !in.Status.Valid() {
		return in, "invalid status"
	}

	var err error
	if in.StartTime, err = parseFlexibleTime(req.StartTime); err != nil {
		return in, "invalid startTime"
	}
	if in.EndTime, err = parseFlexibleTime(req.EndTime); err != nil {
		return in, "invalid endTime"
	}
	if req.Deadline != nil && *req.Deadline != "" {
		d, err := parseFlexibleTime(*req.Deadline)
		if err != nil {
			return in, "invalid deadline"
		}
		in.Deadline = &d
	}
	return in, ""
}

// updateTaskRequest keeps nullable fields raw so an explicit null can be told
// apart from an absent key.
type updateTaskRequest struct {
	Title       *string         `json:"title"`
	Description json.RawMessage `json:"description"`
	Type        *string         `json:"type"`
	Status      *string         `json:"status"`
	Deadline    json.RawMessage `json:"deadline"`
	CompletedAt json.RawMessage `json:"completedAt"`
	StartTime   *string         `json:"startTime"`
	EndTime     *string         `json:"endTime"`
}

var jsonNull = []byte("null")

func optionalString(raw json.RawMessage) (store.Optional[string], error) {
	if len(raw) == 0 {
		return store.Optional[string]{}, nil
	}
	if bytes.Equal(raw, jsonNull) {
		return store.Optional[string]{Set: true}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return store.Optional[string]{}, err
	}
	return store.Optional[string]{Set: true, Value: &s}, nil
}

// optionalTime treats null and "" alike as clearing the field.
func optionalTime(raw json.RawMessage) (store.Optional[time.Time], error) {
	s, err := optionalString(raw)
	if err != nil || !s.Set {
		return store.Optional[time.Time]{}, err
	}
	if s.Value == nil || *s.Value == "" {
		return store.Optional[time.Time]{Set: true}, nil
	}
	t, err := parseFlexibleTime(*s.Value)
	if err != nil {
		return store.Optional[time.Time]{}, err
	}
	return store.Optional[time.Time]{Set: true, Value: &t}, nil
}

func (req updateTaskRequest) toUpdate() (store.TaskUpdate, string) {
	var u store.TaskUpdate
	var err error

	if req.Title != nil {
		if *req.Title == "" {
			return u, "title must not be empty"
		}
		u.Title = req.Title
	}
	if u.Description, err = optionalString(req.Description); err != nil {
		return u, "invalid description"
	}
	if req.Type != nil {
		typ := model.TaskType(*req.Type)
		if !typ.Valid() {
			return u, "invalid type"
		}
		u.Type = &typ
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		if !status.Valid() {
			return u, "invalid status"
		}
		u.Status = &status
	}
	if u.Deadline, err = optionalTime(req.Deadline); err != nil {
		return u, "invalid deadline"
	}
	if u.CompletedAt, err = optionalTime(req.CompletedAt); err != nil {
		return u, "invalid completedAt"
	}

	// A lone bound is ignored.
	if req.StartTime != nil && *req.StartTime != "" && req.EndTime != nil && *req.EndTime != "" {
		start, err := parseFlexibleTime(*req.StartTime)
		if err != nil {
			return u, "invalid startTime"
		}
		end, err := parseFlexibleTime(*req.EndTime)
		if err != nil {
			return u, "invalid endTime"
		}
		u.StartTime, u.EndTime = &start, &end
	}
	return u, ""
}

// List handles GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	tasks, err := h.tasks.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		internalError(w)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in, msg := req.toNewTask()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, in)
	if errors.Is(err, store.ErrInvalidTimeRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create task", "error", err)
		internalError(w)
		return
	}

	h.notifier.Notify(userID, "task", "created", task.ID)
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.GetByID(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get task", "error", err)
		internalError(w)
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update handles PUT /tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, msg := req.toUpdate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	task, err := h.tasks.Update(r.Context(), userID, id, u)
	if errors.Is(err, store.ErrInvalidTimeRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update task", "id", id, "error", err)
		internalError(w)
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	h.notifier.Notify(userID, "task", "updated", task.ID)
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	task, err := h.tasks.Delete(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("delete task", "id", id, "error", err)
		internalError(w)
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	h.notifier.Notify(userID, "task", "deleted", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Task deleted successfully",
		"task":    task,
	})
}

type rescheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Reschedule handles PATCH /tasks/{id}/reschedule
func (h *TaskHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Start == "" || req.End == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	start, err := parseFlexibleTime(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseFlexibleTime(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	ev, err := h.events.Reschedule(r.Context(), userID, id, start, end)
	if errors.Is(err, store.ErrInvalidTimeRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("reschedule task", "id", id, "error", err)
		internalError(w)
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	h.notifier.Notify(userID, "task", "rescheduled", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task rescheduled successfully"})
}

// ClearData handles POST /clear-data
func (h *TaskHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	events, tasks, err := h.tasks.DeleteAllForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("clear data", "error", err)
		internalError(w)
		return
	}
	h.logger.Info("cleared user data", "user_id", userID, "tasks", tasks, "events", events)

	h.notifier.Notify(userID, "task", "cleared", "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "All tasks and calendar events cleared."})
}
