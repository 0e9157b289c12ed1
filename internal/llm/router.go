package llm

import (
	"context"
	"log/slog"
)

type RouterConfig struct {
	Routes        []ModelRoute
	DefaultModel  string
	FallbackModel string
	MaxTokens     int
	Temperature   float32
}

// Router picks a backend per model. Chat requests degrade to the generative
// backend with the fallback model when the chat backend is absent or fails.
type Router struct {
	routes     []ModelRoute
	byModel    map[string]Backend
	chat       Completer
	generative Completer
	cfg        RouterConfig
	logger     *slog.Logger
}

// NewRouter validates cfg. chat and generative may be nil when their
// credentials are not configured.
func NewRouter(cfg RouterConfig, chat, generative Completer, logger *slog.Logger) (*Router, error) {
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if err := ValidateRoutes(cfg.Routes, cfg.DefaultModel, cfg.FallbackModel); err != nil {
		return nil, err
	}

	byModel := make(map[string]Backend, len(cfg.Routes))
	for _, r := range cfg.Routes {
		byModel[r.Model] = r.Backend
	}
	return &Router{
		routes:     cfg.Routes,
		byModel:    byModel,
		chat:       chat,
		generative: generative,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (r *Router) Models() []ModelRoute {
	out := make([]ModelRoute, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Router) DefaultModel() string { return r.cfg.DefaultModel }

func (r *Router) Known(model string) bool {
	_, ok := r.byModel[model]
	return ok
}

// Resolve returns the backend and model id a request for model is sent to
// first. An empty model means the default.
func (r *Router) Resolve(model string) (Backend, string) {
	if model == "" {
		model = r.cfg.DefaultModel
	}
	b, ok := r.byModel[model]
	if !ok {
		return BackendGenerative, r.cfg.FallbackModel
	}
	return b, model
}

// Complete sends prompt to the backend for model and returns the raw text.
func (r *Router) Complete(ctx context.Context, model, prompt string) (string, error) {
	backend, resolved := r.Resolve(model)
	if resolved != model && model != "" {
		r.logger.Warn("unknown model, using fallback", "model", model, "fallback", resolved)
	}

	if backend == BackendChat {
		if r.chat == nil {
			r.logger.Warn("chat backend not configured, using fallback", "model", resolved, "fallback", r.cfg.FallbackModel)
		} else {
			out, err := r.chat.Complete(ctx, r.request(resolved, prompt))
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.logger.Warn("chat backend failed, using fallback", "model", resolved, "fallback", r.cfg.FallbackModel, "error", err)
		}
		resolved = r.cfg.FallbackModel
	}

	if r.generative == nil {
		return "", ErrNotConfigured
	}
	return r.generative.Complete(ctx, r.request(resolved, prompt))
}

func (r *Router) request(model, prompt string) CompletionRequest {
	return CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}
}
