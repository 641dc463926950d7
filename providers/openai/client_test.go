package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davronovuz/smart-kanal-post-bot/llm"
)

func TestChatUsesChatCompletions(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<b>post</b>"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "KEY", time.Second)
	res, err := c.Chat(context.Background(), llm.Request{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "write"}},
		Parameters: map[string]any{
			"temperature": 0.7,
			"max_tokens":  1500,
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path = %q, want /v1/chat/completions", gotPath)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.7 {
		t.Fatalf("temperature not forwarded: %+v", gotBody.Temperature)
	}
	if gotBody.MaxTokens != 1500 {
		t.Fatalf("max_tokens = %d, want 1500", gotBody.MaxTokens)
	}
	if res.Text != "<b>post</b>" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Usage.TotalTokens != 15 {
		t.Fatalf("total tokens = %d, want 15", res.Usage.TotalTokens)
	}
}

func TestChatWebSearchUsesResponses(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[
			{"type":"web_search_call"},
			{"type":"message","content":[{"type":"output_text","text":"research "},{"type":"output_text","text":"findings"}]}
		],"usage":{"input_tokens":20,"output_tokens":30,"total_tokens":50}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "KEY", time.Second)
	res, err := c.Chat(context.Background(), llm.Request{
		Model:     "gpt-4o",
		WebSearch: true,
		Messages:  []llm.Message{{Role: "user", Content: "latest go release"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotPath != "/v1/responses" {
		t.Fatalf("path = %q, want /v1/responses", gotPath)
	}
	if len(gotBody.Tools) != 1 || gotBody.Tools[0]["type"] != "web_search" {
		t.Fatalf("tools = %+v, want web_search", gotBody.Tools)
	}
	if res.Text != "research findings" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestChatErrorMapping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "KEY", time.Second)
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("Chat() expected error")
	}
	want := "openai http 429: rate limit exceeded"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}
