package session

import (
	"context"
	"fmt"
	"strings"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy/types"
)

// Summarizer compresses conversation blocks. Implementations must be
// safe for concurrent use across sessions.
type Summarizer interface {
	// Summarize compresses a block of raw messages into one paragraph.
	Summarize(ctx context.Context, messages []StoredMessage) (string, error)

	// Condense folds hourly summaries, plus any existing session
	// summary, into one rolling session summary.
	Condense(ctx context.Context, existing string, summaries []Summary) (string, error)
}

// ModelSummarizer performs compression with a dedicated, typically
// lower-cost, model call.
type ModelSummarizer struct {
	provider providers.Provider
	model    string
}

// NewModelSummarizer creates a summarizer over the given provider.
func NewModelSummarizer(provider providers.Provider, model string) *ModelSummarizer {
	return &ModelSummarizer{provider: provider, model: model}
}

func (s *ModelSummarizer) complete(ctx context.Context, system, user string) (string, error) {
	maxTokens := 300
	resp, err := s.provider.SendCompletion(ctx, &providers.CompletionRequest{
		Model: s.model,
		Messages: []types.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("summarization returned empty content")
	}
	return out, nil
}

// Summarize implements Summarizer.
func (s *ModelSummarizer) Summarize(ctx context.Context, messages []StoredMessage) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return s.complete(ctx,
		"Compress the following conversation excerpt into a short factual paragraph. Keep names, numbers, and decisions. Do not add commentary.",
		b.String(),
	)
}

// Condense implements Summarizer.
func (s *ModelSummarizer) Condense(ctx context.Context, existing string, summaries []Summary) (string, error) {
	var b strings.Builder
	if existing != "" {
		b.WriteString("Current session summary: ")
		b.WriteString(existing)
		b.WriteString("\n\n")
	}
	for _, sum := range summaries {
		b.WriteString(sum.Bucket.Format("2006-01-02 15:04"))
		b.WriteString(": ")
		b.WriteString(sum.Text)
		b.WriteString("\n")
	}
	return s.complete(ctx,
		"Merge these conversation summaries into one short rolling summary of the whole session. Keep names, numbers, and decisions.",
		b.String(),
	)
}
