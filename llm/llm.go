// Package llm defines the narrow surface the bot needs from a language
// model provider: plain chat completions, and web-search-grounded research
// requests for providers that support them.
package llm

import (
	"context"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model     string
	Messages  []Message
	ForceJSON bool
	// WebSearch asks the provider to ground the response with a live web
	// search. Providers without search support must return an error rather
	// than silently answering from the model alone.
	WebSearch  bool
	Parameters map[string]any
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
