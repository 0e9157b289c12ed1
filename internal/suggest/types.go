// Package suggest turns a model response into a schedule suggestion, falling
// back to a fixed proposal whenever the response cannot be used.
package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reschedule proposes a new slot for an existing task.
type Reschedule struct {
	SuggestedStartTime time.Time `json:"suggestedStartTime"`
	SuggestedEndTime   time.Time `json:"suggestedEndTime"`
	Reasoning          string    `json:"reasoning"`
}

// Breakdown splits a request into subtasks and proposes a slot for all of them.
type Breakdown struct {
	Subtasks               []SubtaskItem `json:"subtasks"`
	TotalEstimatedDuration int           `json:"totalEstimatedDuration"`
	SuggestedStartTime     time.Time     `json:"suggestedStartTime"`
	SuggestedEndTime       time.Time     `json:"suggestedEndTime"`
	Reasoning              string        `json:"reasoning"`
	Priority               string        `json:"priority"`
	Urgency                string        `json:"urgency"`
}

// SubtaskItem is one step of a breakdown. EstimatedDuration is in minutes;
// zero means the model gave no estimate.
type SubtaskItem struct {
	Title             string `json:"title"`
	EstimatedDuration int    `json:"estimatedDuration,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare title string.
func (s *SubtaskItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var title string
		if err := json.Unmarshal(data, &title); err != nil {
			return err
		}
		*s = SubtaskItem{Title: title}
		return nil
	}

	var raw struct {
		Title             string  `json:"title"`
		EstimatedDuration minutes `json:"estimatedDuration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("subtask: %w", err)
	}
	s.Title = raw.Title
	s.EstimatedDuration = 0
	if raw.EstimatedDuration.ok && raw.EstimatedDuration.v > 0 {
		s.EstimatedDuration = int(math.Round(raw.EstimatedDuration.v))
	}
	return nil
}

// minutes is a duration as a model writes it: a number, or a number in a
// string. Anything else decodes as absent rather than failing the response.
type minutes struct {
	v  float64
	ok bool
}

func (m *minutes) UnmarshalJSON(data []byte) error {
	*m = minutes{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var f float64
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	} else if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	m.v, m.ok = f, true
	return nil
}

// Result is what a suggestion request produces. Exactly one of Reschedule
// and Breakdown is set.
type Result struct {
	Reschedule *Reschedule
	Breakdown  *Breakdown
	Fallback   bool
}

// Value returns the populated suggestion for encoding.
func (r Result) Value() any {
	if r.Reschedule != nil {
		return r.Reschedule
	}
	return r.Breakdown
}
