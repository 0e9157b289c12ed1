package suggest

import (
	"testing"
	"time"
)

func TestFallbackReschedule(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.FixedZone("X", 3600))
	r := FallbackReschedule(now)

	if got := r.SuggestedStartTime.Format(time.RFC3339); got != "2025-03-11T22:30:00Z" {
		t.Errorf("start = %s, want 2025-03-11T22:30:00Z", got)
	}
	if got := r.SuggestedEndTime.Format(time.RFC3339); got != "2025-03-11T23:30:00Z" {
		t.Errorf("end = %s, want 2025-03-11T23:30:00Z", got)
	}
	if r.Reasoning != FallbackRescheduleReason {
		t.Errorf("reasoning = %q", r.Reasoning)
	}
}

func TestFallbackBreakdownPositive(t *testing.T) {
	b := FallbackBreakdown("Plan offsite", time.Now())

	if len(b.Subtasks) == 0 {
		t.Fatal("fallback must have at least one subtask")
	}
	if b.TotalEstimatedDuration <= 0 {
		t.Errorf("total = %d, want positive", b.TotalEstimatedDuration)
	}
	if !b.SuggestedStartTime.Before(b.SuggestedEndTime) {
		t.Error("start must precede end")
	}
}
