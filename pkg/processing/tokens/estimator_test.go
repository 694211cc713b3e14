package tokens

import (
	"testing"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

func TestEstimateText(t *testing.T) {
	e := &Estimator{}
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"x", 1},
		{"hello world!", 3},
		{"aaaaaaaaaaaaaaaa", 4},
	}
	for _, tt := range tests {
		if got := e.EstimateText(tt.text, "gpt-4o"); got != tt.want {
			t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateTextModelRatio(t *testing.T) {
	e := &Estimator{Ratios: map[string]float64{"compact": 8.0}}
	text := "aaaaaaaaaaaaaaaa"
	if got := e.EstimateText(text, "compact-1"); got != 2 {
		t.Errorf("ratio override = %d, want 2", got)
	}
	if got := e.EstimateText(text, "gpt-4o"); got != 4 {
		t.Errorf("default ratio = %d, want 4", got)
	}
}

func TestEstimateMessagesIncludesOverheadAndToolCalls(t *testing.T) {
	e := &Estimator{}
	messages := []types.Message{
		{Role: "user", Content: "what is the weather"},
		{Role: "assistant", ToolCalls: []types.ToolCall{{
			Function: types.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
		}}},
	}
	got := e.EstimateMessages(messages, "gpt-4o")
	if got <= 8 {
		t.Errorf("estimate = %d, want more than bare overhead", got)
	}
	bare := e.EstimateMessages(messages[:1], "gpt-4o")
	if got <= bare {
		t.Errorf("tool-call message added nothing: %d vs %d", got, bare)
	}
}

func TestEstimateUsage(t *testing.T) {
	e := &Estimator{}
	usage := e.EstimateUsage(
		[]types.Message{{Role: "user", Content: "hello there"}},
		nil,
		"hi, how can I help you today",
		"gpt-4o",
	)
	if usage.PromptTokens == 0 || usage.CompletionTokens == 0 {
		t.Errorf("usage = %+v, want non-zero estimates", usage)
	}
	if usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Errorf("total %d != prompt %d + completion %d",
			usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
	}
}
