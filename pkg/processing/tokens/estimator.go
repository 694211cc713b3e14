package tokens

import (
	"encoding/json"
	"strings"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// defaultCharsPerToken is the character-to-token ratio used when no
// model-specific ratio is known. Around 4 chars/token holds for English
// text on GPT-family tokenizers.
const defaultCharsPerToken = 4.0

// perMessageOverhead approximates the formatting tokens each chat
// message costs beyond its content.
const perMessageOverhead = 4

// Estimator is a character-based token estimator. The zero value is
// ready to use.
type Estimator struct {
	// Ratios maps model name prefixes to chars-per-token ratios.
	// Unmatched models use the default.
	Ratios map[string]float64
}

func (e *Estimator) charsPerToken(model string) float64 {
	for prefix, ratio := range e.Ratios {
		if strings.HasPrefix(model, prefix) && ratio > 0 {
			return ratio
		}
	}
	return defaultCharsPerToken
}

// EstimateText estimates tokens for one text string.
func (e *Estimator) EstimateText(text, model string) int {
	if text == "" {
		return 0
	}
	tokens := float64(len(text)) / e.charsPerToken(model)
	if tokens < 1 {
		return 1
	}
	return int(tokens + 0.5)
}

// EstimateMessages estimates prompt tokens for a message list,
// including per-message formatting overhead and tool-call payloads.
func (e *Estimator) EstimateMessages(messages []types.Message, model string) int {
	total := 0
	for i := range messages {
		msg := &messages[i]
		total += perMessageOverhead
		total += e.EstimateText(msg.Text(), model)
		if msg.Name != "" {
			total += e.EstimateText(msg.Name, model)
		}
		for _, tc := range msg.ToolCalls {
			total += e.EstimateText(tc.Function.Name, model)
			total += e.EstimateText(tc.Function.Arguments, model)
		}
	}
	return total
}

// EstimateTools estimates tokens consumed by tool definitions offered
// with a request.
func (e *Estimator) EstimateTools(tools []types.Tool, model string) int {
	total := 0
	for _, tool := range tools {
		total += e.EstimateText(tool.Function.Name, model)
		total += e.EstimateText(tool.Function.Description, model)
		if tool.Function.Parameters != nil {
			if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
				total += e.EstimateText(string(raw), model)
			}
		}
		total += 10
	}
	return total
}

// EstimateUsage builds a usage record from a prompt and the generated
// content, for responses where the upstream omitted accounting.
func (e *Estimator) EstimateUsage(messages []types.Message, tools []types.Tool, completion, model string) types.Usage {
	prompt := e.EstimateMessages(messages, model) + e.EstimateTools(tools, model)
	out := e.EstimateText(completion, model)
	return types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}
