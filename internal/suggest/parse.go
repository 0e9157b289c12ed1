package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrNoJSON        = errors.New("no JSON object in model response")
	ErrMissingFields = errors.New("model response missing required fields")
	ErrBadTimestamp  = errors.New("model response has an unusable timestamp")
)

const (
	DefaultPriority = "normal"
	DefaultUrgency  = "medium"
)

// ExtractJSON returns the text from the first '{' to the last '}'.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

type rawSuggestion struct {
	Subtasks               []SubtaskItem `json:"subtasks"`
	TotalEstimatedDuration minutes       `json:"totalEstimatedDuration"`
	EstimatedDuration      minutes       `json:"estimatedDuration"`
	SuggestedStartTime     string        `json:"suggestedStartTime"`
	SuggestedEndTime       string        `json:"suggestedEndTime"`
	Reasoning              string        `json:"reasoning"`
	Priority               string        `json:"priority"`
	Urgency                string        `json:"urgency"`
}

func decode(text string) (*rawSuggestion, error) {
	obj, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var raw rawSuggestion
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &raw, nil
}

// ParseReschedule validates a reschedule response. Zone-less timestamps are
// read in loc.
func ParseReschedule(text string, loc *time.Location) (*Reschedule, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, err
	}
	start, end, err := parseSlot(raw, loc)
	if err != nil {
		return nil, err
	}
	return &Reschedule{
		SuggestedStartTime: start,
		SuggestedEndTime:   end,
		Reasoning:          raw.Reasoning,
	}, nil
}

// ParseBreakdown validates a breakdown response and normalizes older shapes:
// bare-string subtasks, a top-level estimatedDuration, and absent
// priority or urgency.
func ParseBreakdown(text string, loc *time.Location) (*Breakdown, error) {
	raw, err := decode(text)
	if err != nil {
		return nil, err
	}

	subtasks := make([]SubtaskItem, 0, len(raw.Subtasks))
	for _, st := range raw.Subtasks {
		st.Title = strings.TrimSpace(st.Title)
		if st.Title != "" {
			subtasks = append(subtasks, st)
		}
	}
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("%w: subtasks", ErrMissingFields)
	}

	total := raw.TotalEstimatedDuration
	if !total.ok {
		total = raw.EstimatedDuration
	}
	if !total.ok || total.v <= 0 {
		return nil, fmt.Errorf("%w: totalEstimatedDuration", ErrMissingFields)
	}
	totalMinutes := int(math.Round(total.v))
	if totalMinutes < 1 {
		totalMinutes = 1
	}

	start, end, err := parseSlot(raw, loc)
	if err != nil {
		return nil, err
	}

	return &Breakdown{
		Subtasks:               subtasks,
		TotalEstimatedDuration: totalMinutes,
		SuggestedStartTime:     start,
		SuggestedEndTime:       end,
		Reasoning:              raw.Reasoning,
		Priority:               normalizeLevel(raw.Priority, DefaultPriority, "high", "normal", "low"),
		Urgency:                normalizeLevel(raw.Urgency, DefaultUrgency, "high", "medium", "low"),
	}, nil
}

func parseSlot(raw *rawSuggestion, loc *time.Location) (time.Time, time.Time, error) {
	if raw.SuggestedStartTime == "" || raw.SuggestedEndTime == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: suggestedStartTime/suggestedEndTime", ErrMissingFields)
	}
	start, err := ParseTimestamp(raw.SuggestedStartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseTimestamp(raw.SuggestedEndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s not before end %s", ErrBadTimestamp, raw.SuggestedStartTime, raw.SuggestedEndTime)
	}
	return start, end, nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts RFC 3339, or an ISO date-time without offset which
// is interpreted in loc. The result is in UTC.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

func normalizeLevel(v, def string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
