// Package research implements post generation: a web-search research pass
// followed by a formatting pass that writes the channel post, plus the
// instruction-guided rewrite used by the edit flow.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/davronovuz/smart-kanal-post-bot/llm"
	"github.com/davronovuz/smart-kanal-post-bot/post"
)

const (
	keywordModelMaxTokens = 20
	postMaxTokens         = 1500
	postTemperature       = 0.7
)

// Researcher implements post.Generator over an llm.Client.
type Researcher struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

func New(client llm.Client, model string, logger *slog.Logger) *Researcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Researcher{client: client, model: model, logger: logger}
}

// Generate runs the research pass for the topic and composes a post of the
// requested kind. Images are only fetched for full posts; a failed image
// lookup degrades to a text-only draft rather than failing the whole
// generation.
func (r *Researcher) Generate(ctx context.Context, topic string, kind post.Kind, withImage bool) (post.Draft, error) {
	research, err := r.searchAndAnalyze(ctx, searchQuery(topic, kind))
	if err != nil {
		return post.Draft{}, fmt.Errorf("research: %w", err)
	}

	text, err := r.composePost(ctx, topic, research, kind)
	if err != nil {
		return post.Draft{}, fmt.Errorf("compose: %w", err)
	}

	draft := post.Draft{Text: text, Research: research}
	if withImage && kind == post.KindFull {
		imageURL, err := r.imageForTopic(ctx, topic)
		if err != nil {
			r.logger.Warn("image_lookup_failed", "topic", topic, "error", err.Error())
		} else {
			draft.ImageURL = imageURL
		}
	}
	return draft, nil
}

// EditGenerate rewrites current per the free-text instruction.
func (r *Researcher) EditGenerate(ctx context.Context, current, instruction string) (string, error) {
	res, err := r.client.Chat(ctx, llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: editSystemPrompt},
			{Role: "user", Content: "POST:\n" + current + "\n\nREQUEST: " + instruction},
		},
		Parameters: map[string]any{
			"temperature": postTemperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("edit: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("edit: empty model output")
	}
	return text, nil
}

func (r *Researcher) searchAndAnalyze(ctx context.Context, query string) (string, error) {
	res, err := r.client.Chat(ctx, llm.Request{
		Model:     r.model,
		WebSearch: true,
		Messages: []llm.Message{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(researchUserTemplate, query)},
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("empty research output")
	}
	r.logger.Debug("research_done", "query", query, "research_len", len(text), "tokens", res.Usage.TotalTokens)
	return text, nil
}

func (r *Researcher) composePost(ctx context.Context, topic, research string, kind post.Kind) (string, error) {
	res, err := r.client.Chat(ctx, llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPromptFor(kind)},
			{Role: "user", Content: "Write a post based on these research findings:\n\nTOPIC: " + topic + "\n\nFINDINGS:\n" + research},
		},
		Parameters: map[string]any{
			"temperature": postTemperature,
			"max_tokens":  postMaxTokens,
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("empty post output")
	}
	return text, nil
}

// imageForTopic asks the model for a short English keyword and builds an
// Unsplash source URL from it. No image API key is involved.
func (r *Researcher) imageForTopic(ctx context.Context, topic string) (string, error) {
	res, err := r.client.Chat(ctx, llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: imageKeywordPrompt},
			{Role: "user", Content: topic},
		},
		Parameters: map[string]any{
			"max_tokens": keywordModelMaxTokens,
		},
	})
	if err != nil {
		return "", err
	}
	keyword := strings.TrimSpace(res.Text)
	if keyword == "" {
		return "", fmt.Errorf("empty image keyword")
	}
	return imageURLForKeyword(keyword), nil
}

func imageURLForKeyword(keyword string) string {
	terms := strings.FieldsFunc(keyword, func(r rune) bool { return r == ' ' || r == ',' })
	for i := range terms {
		terms[i] = url.PathEscape(terms[i])
	}
	return "https://source.unsplash.com/800x600/?" + strings.Join(terms, ",")
}

func searchQuery(topic string, kind post.Kind) string {
	switch kind {
	case post.KindCompare:
		return topic + " comparison differences advantages"
	case post.KindTrending:
		return "trending tech news today"
	default:
		return topic
	}
}

func systemPromptFor(kind post.Kind) string {
	switch kind {
	case post.KindQuick:
		return quickPostSystemPrompt
	case post.KindCompare:
		return comparePostSystemPrompt
	case post.KindTrending:
		return trendingPostSystemPrompt
	default:
		return fullPostSystemPrompt
	}
}
