package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/taskcal/internal/llm"
	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/planner"
	"github.com/dukerupert/taskcal/internal/store"
	"github.com/dukerupert/taskcal/internal/suggest"
)

type fakeSuggester struct {
	result suggest.Result
	got    suggest.Request
	calls  int
}

func (f *fakeSuggester) Suggest(_ context.Context, _ string, req suggest.Request) suggest.Result {
	f.calls++
	f.got = req
	return f.result
}

type fakeCatalog struct {
	models []llm.ModelRoute
}

func (c fakeCatalog) Models() []llm.ModelRoute { return c.models }
func (c fakeCatalog) DefaultModel() string     { return c.models[0].Model }
func (c fakeCatalog) Known(model string) bool {
	for _, m := range c.models {
		if m.Model == model {
			return true
		}
	}
	return false
}

func testCatalog() fakeCatalog {
	return fakeCatalog{models: []llm.ModelRoute{
		{Model: "gpt-4o", Backend: llm.BackendChat},
		{Model: "gemini-1.5-flash", Backend: llm.BackendGenerative},
	}}
}

func TestAISuggestFallback(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	fs := &fakeSuggester{result: suggest.Result{
		Breakdown: suggest.FallbackBreakdown("Write quarterly report", now),
		Fallback:  true,
	}}
	h := NewAIHandler(fs, nil, testCatalog(), nil, discardLogger())

	rec := httptest.NewRecorder()
	h.Suggest(rec, newRequest("POST", "/ai", "u1", map[string]string{"prompt": "Write quarterly report"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Suggestion-Fallback") != "true" {
		t.Error("missing fallback header")
	}

	var b suggest.Breakdown
	decodeBody(t, rec, &b)
	if len(b.Subtasks) != 1 || b.Subtasks[0].Title != "Write quarterly report" || b.Subtasks[0].EstimatedDuration != 60 {
		t.Errorf("subtasks = %+v", b.Subtasks)
	}
	if b.TotalEstimatedDuration != 60 || b.Priority != "normal" || b.Urgency != "medium" {
		t.Errorf("breakdown = %+v", b)
	}
	if b.Reasoning != "Fallback response due to AI error" {
		t.Errorf("reasoning = %q", b.Reasoning)
	}
	if !b.SuggestedStartTime.Equal(now.Add(24*time.Hour)) || !b.SuggestedEndTime.Equal(now.Add(25*time.Hour)) {
		t.Errorf("slot = %v - %v", b.SuggestedStartTime, b.SuggestedEndTime)
	}
}

func TestAISuggestReschedule(t *testing.T) {
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	fs := &fakeSuggester{result: suggest.Result{Reschedule: &suggest.Reschedule{
		SuggestedStartTime: start,
		SuggestedEndTime:   start.Add(time.Hour),
		Reasoning:          "Morning is free",
	}}}
	h := NewAIHandler(fs, nil, testCatalog(), nil, discardLogger())

	rec := httptest.NewRecorder()
	h.Suggest(rec, newRequest("POST", "/ai", "u1", `{"taskToReschedule": {"title": "Review", "startTime": "2025-03-10T09:00:00Z", "endTime": "2025-03-10T10:00:00Z"}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Suggestion-Fallback") != "" {
		t.Error("unexpected fallback header")
	}
	if fs.got.TaskToReschedule == nil || fs.got.TaskToReschedule.Title != "Review" {
		t.Errorf("request = %+v", fs.got)
	}
	var r suggest.Reschedule
	decodeBody(t, rec, &r)
	if !r.SuggestedStartTime.Equal(start) || r.Reasoning != "Morning is free" {
		t.Errorf("reschedule = %+v", r)
	}
}

func TestAISuggestBadRequest(t *testing.T) {
	fs := &fakeSuggester{}
	h := NewAIHandler(fs, nil, testCatalog(), nil, discardLogger())

	for _, body := range []string{`{}`, `{"prompt": ""}`, `nope`} {
		rec := httptest.NewRecorder()
		h.Suggest(rec, newRequest("POST", "/ai", "u1", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
	if fs.calls != 0 {
		t.Errorf("suggester called %d times", fs.calls)
	}
}

func TestAIScheduleCreatesTasks(t *testing.T) {
	e := setupTaskEnv(t)
	p := planner.New(store.NewTaskStore(e.db), discardLogger())
	h := NewAIHandler(&fakeSuggester{}, p, testCatalog(), e.notifier, discardLogger())

	body := `{
		"title": "Launch plan",
		"type": "DEADLINE",
		"suggestion": {
			"subtasks": [{"title": "Outline", "estimatedDuration": 30}, "Draft"],
			"totalEstimatedDuration": 90,
			"suggestedStartTime": "2025-03-10T09:00:00Z",
			"suggestedEndTime": "2025-03-10T11:00:00Z",
			"reasoning": "",
			"priority": "high",
			"urgency": "high"
		}
	}`
	rec := httptest.NewRecorder()
	h.Schedule(rec, newRequest("POST", "/ai/schedule", e.userID, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var res planner.Result
	decodeBody(t, rec, &res)
	if res.Parent == nil || res.Parent.Title != "Launch plan" || res.Parent.Type != model.TaskTypeDeadline {
		t.Fatalf("parent = %+v", res.Parent)
	}
	if res.Parent.Deadline == nil || res.Parent.Deadline.Format(time.RFC3339) != "2025-03-10T11:00:00Z" {
		t.Errorf("parent deadline = %v", res.Parent.Deadline)
	}
	if len(res.Subtasks) != 2 {
		t.Fatalf("subtasks = %+v", res.Subtasks)
	}
	for i, want := range []string{"Launch plan - Outline", "Launch plan - Draft"} {
		s := res.Subtasks[i]
		if s.Title != want || s.Task == nil || s.Task.Type != model.TaskTypeFocusBlock {
			t.Errorf("subtask %d = %+v", i, s)
		}
	}

	tasks, _ := store.NewTaskStore(e.db).List(context.Background(), e.userID)
	if len(tasks) != 3 {
		t.Errorf("stored %d tasks, want 3", len(tasks))
	}
	if got := len(e.notifier.actions()); got != 3 {
		t.Errorf("notifications = %d, want 3", got)
	}
}

func TestAIScheduleValidation(t *testing.T) {
	e := setupTaskEnv(t)
	p := planner.New(store.NewTaskStore(e.db), discardLogger())
	h := NewAIHandler(&fakeSuggester{}, p, testCatalog(), nil, discardLogger())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no title", `{"suggestion": {"suggestedStartTime": "2025-03-10T09:00:00Z", "suggestedEndTime": "2025-03-10T10:00:00Z"}}`, http.StatusBadRequest},
		{"no slot", `{"title": "x", "suggestion": {}}`, http.StatusBadRequest},
		{"bad type", `{"title": "x", "type": "CHORE", "suggestion": {"suggestedStartTime": "2025-03-10T09:00:00Z", "suggestedEndTime": "2025-03-10T10:00:00Z"}}`, http.StatusBadRequest},
		{"inverted", `{"title": "x", "suggestion": {"suggestedStartTime": "2025-03-10T11:00:00Z", "suggestedEndTime": "2025-03-10T10:00:00Z"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Schedule(rec, newRequest("POST", "/ai/schedule", e.userID, tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestAIModels(t *testing.T) {
	h := NewAIHandler(&fakeSuggester{}, nil, testCatalog(), nil, discardLogger())
	rec := httptest.NewRecorder()
	h.Models(rec, newRequest("GET", "/ai/models", "u1", nil))

	var body struct {
		DefaultModel string           `json:"defaultModel"`
		Models       []llm.ModelRoute `json:"models"`
	}
	decodeBody(t, rec, &body)
	if body.DefaultModel != "gpt-4o" || len(body.Models) != 2 {
		t.Errorf("body = %+v", body)
	}
}
