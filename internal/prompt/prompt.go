package prompt

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

const unspecified = "not specified (you may ignore if unspecified)"

// Task is a placed task the user wants moved.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Urgency     string `json:"urgency"`
}

// Input carries everything a prompt is built from. Task selects the
// reschedule template; otherwise Request is broken down.
type Input struct {
	Now            time.Time
	Location       *time.Location
	WorkingHours   string
	PreferredTimes string
	Schedule       string
	Request        string
	Task           *Task
}

type view struct {
	CurrentDateTime string
	TimeZone        string
	Weekday         string
	WorkingHours    string
	PreferredTimes  string
	Schedule        string
	Request         string
	Reschedule      bool
	Task            Task
}

var (
	rescheduleTmpl = template.Must(template.New("reschedule").Parse(contextSection + rescheduleBody))
	breakdownTmpl  = template.Must(template.New("breakdown").Parse(contextSection + breakdownBody))
)

// Compose renders the prompt for in. The output is plain text; no escaping
// is applied to user-supplied values.
func Compose(in Input) (string, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)
	v := view{
		CurrentDateTime: now.Format(time.RFC3339),
		TimeZone:        loc.String(),
		Weekday:         now.Weekday().String(),
		WorkingHours:    orDefault(in.WorkingHours, unspecified),
		PreferredTimes:  orDefault(in.PreferredTimes, unspecified),
		Schedule:        orDefault(in.Schedule, NoEvents),
		Request:         in.Request,
	}

	tmpl := breakdownTmpl
	if in.Task != nil {
		tmpl = rescheduleTmpl
		v.Reschedule = true
		v.Task = *in.Task
		v.Task.Description = orDefault(in.Task.Description, "no description")
		v.Task.Type = orDefault(in.Task.Type, "TASK")
		v.Task.Priority = orDefault(in.Task.Priority, "normal")
		v.Task.Urgency = orDefault(in.Task.Urgency, "medium")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

const contextSection = `{{if .Reschedule}}You are an AI scheduling assistant that helps reschedule incomplete tasks intelligently.{{else}}You are an AI task management assistant that helps analyze, break down, and intelligently schedule complex tasks.{{end}}

CONTEXT:
- Current date/time: {{.CurrentDateTime}} ({{.TimeZone}})
- Today is {{.Weekday}}
- User's working hours: {{.WorkingHours}}
- User's preferred times: {{.PreferredTimes}}
`

const outputRules = `OUTPUT FORMAT:
- Return ONLY a valid JSON object. Do not include any explanations, markdown syntax, or comments outside of the JSON
- Your output must start with { and end with }. No code fences or markdown formatting
- Do not wrap the response in any sentences or natural language
`

const rescheduleBody = `
TASK TO RESCHEDULE:
- Title: "{{.Task.Title}}"
- Description: "{{.Task.Description}}"
- Originally scheduled: {{.Task.StartTime}} to {{.Task.EndTime}}
- Type: {{.Task.Type}}
- Priority: {{.Task.Priority}}
- Urgency: {{.Task.Urgency}}

EXISTING SCHEDULE (next 7 days):
{{.Schedule}}

INSTRUCTIONS:
1. Analyze the task description for any specific requirements, constraints, or dependencies that affect rescheduling
2. Find the best available time slot that doesn't conflict with existing events
3. Respect working hours and user preferences. Avoid scheduling outside of 6am-10pm unless explicitly allowed
4. Consider the task type, priority, and urgency level, plus any details from the description
5. Suggest a time that's realistic and achievable based on task complexity
6. If possible, schedule within the next 2-3 days unless it's a low-priority task
7. Ensure at least 15-30 minutes buffer before and after other scheduled events

` + outputRules + `
{
  "suggestedStartTime": "ISO datetime string",
  "suggestedEndTime": "ISO datetime string",
  "reasoning": "Brief explanation of why this time was chosen (considering task description details if relevant)"
}`

const breakdownBody = `
TASK TO ANALYZE: "{{.Request}}"

EXISTING SCHEDULE (next 7 days):
{{.Schedule}}

INSTRUCTIONS:
1. CAREFULLY READ AND UNDERSTAND the complete task information (both title and any description provided)
2. If a description is provided, extract key requirements, constraints, deadlines, and specific details that affect task breakdown and scheduling
3. Use description details to determine the true scope, complexity, and priority/urgency level
4. Leverage any mentioned context (meetings, dependencies, specific requirements) from the description to create more accurate subtasks
5. Break down ONLY complex tasks into 3-6 logical, sequential subtasks
6. Each subtask should be:
   - A clear, actionable step with specific deliverable
   - Independent enough to be completed separately
   - Properly spaced with buffer time between steps
   - Not combined or rushed together
7. Estimate realistic duration for EACH subtask (15-120 minutes per subtask)
8. Total duration should account for breaks and context switching between subtasks
9. Find the best available time slot that doesn't conflict with existing events
10. Respect working hours and user preferences. Avoid scheduling outside of 6am-10pm unless explicitly allowed
11. Don't schedule subtasks back-to-back without at least 15-30 minutes break in between
12. Schedule within the next 3-5 days unless urgent
13. For simple tasks that don't need breakdown, return fewer subtasks or just the main task

` + outputRules + `
{
  "subtasks": [
    { "title": "Clear, actionable subtask 1", "estimatedDuration": 30 },
    { "title": "Well-spaced subtask 2", "estimatedDuration": 45 },
    { "title": "Final subtask 3", "estimatedDuration": 30 }
  ],
  "totalEstimatedDuration": 135,
  "suggestedStartTime": "ISO datetime string",
  "suggestedEndTime": "ISO datetime string",
  "reasoning": "Detailed explanation of how you understood the task (including key details from description if provided), why you broke it down this way, and your scheduling logic with emphasis on proper spacing and timing",
  "priority": "high|normal|low",
  "urgency": "high|medium|low"
}`
