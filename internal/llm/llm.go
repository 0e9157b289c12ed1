// Package llm routes completion requests to a configured model backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Backend string

const (
	// BackendChat is an OpenAI-compatible chat completion endpoint.
	BackendChat Backend = "chat"
	// BackendGenerative is the Gemini generateContent API.
	BackendGenerative Backend = "generative"
)

func (b Backend) Valid() bool {
	return b == BackendChat || b == BackendGenerative
}

var (
	ErrNotConfigured = errors.New("no model backend configured")
	ErrEmptyResponse = errors.New("model returned no content")
)

// ModelRoute maps a user-selectable model id to the backend that serves it.
type ModelRoute struct {
	Model   string  `json:"model" mapstructure:"model" yaml:"model"`
	Backend Backend `json:"backend" mapstructure:"backend" yaml:"backend"`
}

type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

const (
	DefaultModel         = "gpt-4"
	DefaultFallbackModel = "gemini-1.5-flash"
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.7
)

func DefaultRoutes() []ModelRoute {
	return []ModelRoute{
		{Model: "gpt-4", Backend: BackendChat},
		{Model: "gpt-4o", Backend: BackendChat},
		{Model: "gpt-4o-mini", Backend: BackendChat},
		{Model: "o1-mini", Backend: BackendChat},
		{Model: "o1-preview", Backend: BackendChat},
		{Model: "gemini-1.5-flash", Backend: BackendGenerative},
		{Model: "gemini-1.5-pro", Backend: BackendGenerative},
		{Model: "gemini-2.0-flash", Backend: BackendGenerative},
	}
}

// ValidateRoutes checks a route table against its default and fallback
// models and reports every problem found.
func ValidateRoutes(routes []ModelRoute, defaultModel, fallbackModel string) error {
	var problems []string
	seen := make(map[string]Backend, len(routes))
	for i, r := range routes {
		if strings.TrimSpace(r.Model) == "" {
			problems = append(problems, fmt.Sprintf("route %d: empty model", i))
			continue
		}
		if !r.Backend.Valid() {
			problems = append(problems, fmt.Sprintf("route %q: unknown backend %q", r.Model, r.Backend))
		}
		if _, dup := seen[r.Model]; dup {
			problems = append(problems, fmt.Sprintf("route %q: duplicate", r.Model))
		}
		seen[r.Model] = r.Backend
	}

	if _, ok := seen[defaultModel]; !ok {
		problems = append(problems, fmt.Sprintf("default model %q has no route", defaultModel))
	}
	if b, ok := seen[fallbackModel]; !ok {
		problems = append(problems, fmt.Sprintf("fallback model %q has no route", fallbackModel))
	} else if b != BackendGenerative {
		problems = append(problems, fmt.Sprintf("fallback model %q must use the %s backend", fallbackModel, BackendGenerative))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid model routes: %s", strings.Join(problems, "; "))
	}
	return nil
}
