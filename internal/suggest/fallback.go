package suggest

import "time"

const (
	fallbackDelay    = 24 * time.Hour
	fallbackDuration = time.Hour
	fallbackMinutes  = 60

	FallbackRescheduleReason = "Fallback scheduling due to AI error"
	FallbackBreakdownReason  = "Fallback response due to AI error"
)

// FallbackReschedule proposes the hour starting 24 hours from now.
func FallbackReschedule(now time.Time) *Reschedule {
	start := now.UTC().Add(fallbackDelay)
	return &Reschedule{
		SuggestedStartTime: start,
		SuggestedEndTime:   start.Add(fallbackDuration),
		Reasoning:          FallbackRescheduleReason,
	}
}

// FallbackBreakdown treats the whole request as a single one-hour subtask
// starting 24 hours from now.
func FallbackBreakdown(request string, now time.Time) *Breakdown {
	start := now.UTC().Add(fallbackDelay)
	return &Breakdown{
		Subtasks:               []SubtaskItem{{Title: request, EstimatedDuration: fallbackMinutes}},
		TotalEstimatedDuration: fallbackMinutes,
		SuggestedStartTime:     start,
		SuggestedEndTime:       start.Add(fallbackDuration),
		Reasoning:              FallbackBreakdownReason,
		Priority:               DefaultPriority,
		Urgency:                DefaultUrgency,
	}
}
