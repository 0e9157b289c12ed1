package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClientComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer gh-token" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewChatClient("gh-token", srv.URL, srv.Client())
	out, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4", Prompt: "hello", MaxTokens: 1000, Temperature: 0.7})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("out = %q", out)
	}
	if got["model"] != "gpt-4" {
		t.Errorf("model = %v, want gpt-4", got["model"])
	}
	if got["max_tokens"] != float64(1000) {
		t.Errorf("max_tokens = %v, want 1000", got["max_tokens"])
	}
}

func TestChatClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer srv.Close()

	c := NewChatClient("t", srv.URL, srv.Client())
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4", Prompt: "x"})
	if err != ErrEmptyResponse {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestChatClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad token","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewChatClient("t", srv.URL, srv.Client())
	if _, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4", Prompt: "x"}); err == nil {
		t.Fatal("expected error for 401")
	}
}
