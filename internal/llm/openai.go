package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GitHubModelsURL is the OpenAI-compatible endpoint for GitHub Models.
const GitHubModelsURL = "https://models.inference.ai.azure.com"

// ChatClient talks to an OpenAI-compatible chat completion API.
type ChatClient struct {
	client *openai.Client
}

func NewChatClient(token, baseURL string, httpClient *http.Client) *ChatClient {
	cfg := openai.DefaultConfig(token)
	if baseURL == "" {
		baseURL = GitHubModelsURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &ChatClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *ChatClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	// Reasoning models reject max_tokens and a non-default temperature.
	if strings.HasPrefix(req.Model, "o1") {
		chatReq.MaxCompletionTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = req.MaxTokens
		chatReq.Temperature = req.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
