package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
	"github.com/dukerupert/taskcal/internal/prompt"
)

var fixedNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

type stubSchedule struct {
	text string
	err  error
}

func (s stubSchedule) Build(ctx context.Context, userID string, now time.Time) (string, error) {
	return s.text, s.err
}

type stubPrefs struct {
	prefs *model.AIPreferences
	err   error
}

func (s stubPrefs) Get(userID string) (*model.AIPreferences, error) {
	return s.prefs, s.err
}

type stubLLM struct {
	out        string
	err        error
	gotModel   string
	gotPrompt  string
	callsCount int
}

func (s *stubLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	s.callsCount++
	s.gotModel, s.gotPrompt = model, prompt
	return s.out, s.err
}

func newTestService(llm Completer, prefs PreferenceGetter) *Service {
	svc := NewService(stubSchedule{text: prompt.NoEvents}, prefs, llm, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestSuggestBreakdownFallbackShape(t *testing.T) {
	svc := newTestService(&stubLLM{err: errors.New("backend down")}, stubPrefs{})

	res := svc.Suggest(context.Background(), "u1", Request{Prompt: "Write quarterly report"})
	if !res.Fallback {
		t.Error("expected fallback result")
	}
	b := res.Breakdown
	if b == nil {
		t.Fatal("expected breakdown")
	}
	if len(b.Subtasks) != 1 || b.Subtasks[0].Title != "Write quarterly report" || b.Subtasks[0].EstimatedDuration != 60 {
		t.Errorf("subtasks = %+v", b.Subtasks)
	}
	if b.TotalEstimatedDuration != 60 {
		t.Errorf("total = %d, want 60", b.TotalEstimatedDuration)
	}
	if !b.SuggestedStartTime.Equal(fixedNow.Add(24 * time.Hour)) {
		t.Errorf("start = %v, want now+24h", b.SuggestedStartTime)
	}
	if !b.SuggestedEndTime.Equal(fixedNow.Add(25 * time.Hour)) {
		t.Errorf("end = %v, want now+25h", b.SuggestedEndTime)
	}

	body, _ := json.Marshal(res.Value())
	want := `{"subtasks":[{"title":"Write quarterly report","estimatedDuration":60}],"totalEstimatedDuration":60,` +
		`"suggestedStartTime":"2025-03-11T14:00:00Z","suggestedEndTime":"2025-03-11T15:00:00Z",` +
		`"reasoning":"Fallback response due to AI error","priority":"normal","urgency":"medium"}`
	if string(body) != want {
		t.Errorf("json =\n%s\nwant\n%s", body, want)
	}
}

func TestSuggestRescheduleFallbackOnGarbage(t *testing.T) {
	svc := newTestService(&stubLLM{out: "I cannot help with that."}, stubPrefs{})

	res := svc.Suggest(context.Background(), "u1", Request{TaskToReschedule: &prompt.Task{Title: "Review PR"}})
	r := res.Reschedule
	if r == nil {
		t.Fatal("expected reschedule")
	}
	if r.Reasoning != "Fallback scheduling due to AI error" {
		t.Errorf("reasoning = %q", r.Reasoning)
	}
	if r.SuggestedStartTime.IsZero() || r.SuggestedEndTime.IsZero() {
		t.Error("fallback must carry both timestamps")
	}
	if !r.SuggestedEndTime.Equal(r.SuggestedStartTime.Add(time.Hour)) {
		t.Errorf("fallback slot should last one hour")
	}
}

func TestSuggestFallbackOnPreferenceError(t *testing.T) {
	llm := &stubLLM{out: "{}"}
	svc := newTestService(llm, stubPrefs{err: errors.New("db locked")})

	res := svc.Suggest(context.Background(), "u1", Request{Prompt: "x"})
	if !res.Fallback {
		t.Error("expected fallback")
	}
	if llm.callsCount != 0 {
		t.Error("model should not be called when preferences fail")
	}
}

func TestSuggestBreakdownSuccess(t *testing.T) {
	llm := &stubLLM{out: "Here you go:\n```json\n" +
		`{"subtasks":[{"title":"Collect numbers","estimatedDuration":45},{"title":"Write draft","estimatedDuration":60}],` +
		`"totalEstimatedDuration":125,"suggestedStartTime":"2025-03-11T09:00:00Z","suggestedEndTime":"2025-03-11T11:05:00Z",` +
		`"reasoning":"Tuesday morning is free"}` + "\n```"}
	prefs := &model.AIPreferences{WorkingHours: "9-5", SelectedModel: "gemini-1.5-pro"}
	svc := newTestService(llm, stubPrefs{prefs: prefs})

	res := svc.Suggest(context.Background(), "u1", Request{Prompt: "Write quarterly report"})
	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if llm.gotModel != "gemini-1.5-pro" {
		t.Errorf("model = %q, want selected model", llm.gotModel)
	}
	if !strings.Contains(llm.gotPrompt, "User's working hours: 9-5") {
		t.Error("prompt should include working hours")
	}
	if !strings.Contains(llm.gotPrompt, `TASK TO ANALYZE: "Write quarterly report"`) {
		t.Error("prompt should include the request")
	}
	b := res.Breakdown
	if len(b.Subtasks) != 2 || b.TotalEstimatedDuration != 125 {
		t.Errorf("breakdown = %+v", b)
	}
	if b.Priority != "normal" || b.Urgency != "medium" {
		t.Errorf("defaults not applied: %q/%q", b.Priority, b.Urgency)
	}
}

func TestSuggestRescheduleSuccess(t *testing.T) {
	llm := &stubLLM{out: `{"suggestedStartTime":"2025-03-12T15:00:00Z","suggestedEndTime":"2025-03-12T16:00:00Z","reasoning":"after lunch"}`}
	svc := newTestService(llm, stubPrefs{})

	res := svc.Suggest(context.Background(), "u1", Request{TaskToReschedule: &prompt.Task{Title: "Review PR"}})
	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if res.Reschedule.Reasoning != "after lunch" {
		t.Errorf("reasoning = %q", res.Reschedule.Reasoning)
	}
	if llm.gotModel != "" {
		t.Errorf("model = %q, want empty so the router picks its default", llm.gotModel)
	}
	if !strings.Contains(llm.gotPrompt, "TASK TO RESCHEDULE") {
		t.Error("expected reschedule prompt")
	}
}
