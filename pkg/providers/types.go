package providers

import (
	"time"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// ProviderConfig configures one upstream provider endpoint.
type ProviderConfig struct {
	// Name identifies the provider in logs and metrics (e.g., "upstream",
	// "summarizer").
	Name string

	// BaseURL is the API root (e.g., "https://api.openai.com/v1").
	BaseURL string

	// APIKey is sent as a bearer token. Optional for keyless endpoints.
	APIKey string

	// Timeout bounds a single HTTP request. Default: 120s.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryBackoff is the base delay for exponential backoff between
	// retries. Default: 500ms.
	RetryBackoff time.Duration

	// MaxIdleConns caps pooled idle connections. Default: 32.
	MaxIdleConns int

	// IdleConnTimeout is how long idle connections are kept. Default: 90s.
	IdleConnTimeout time.Duration
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 32
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
}

// CompletionRequest is an upstream chat completion call.
type CompletionRequest struct {
	// Model is the upstream model identifier.
	Model string

	// Messages is the full prompt, including any merged memory context
	// and accumulated tool results.
	Messages []types.Message

	// Tools lists tool definitions offered for this call. The stream
	// controller shrinks this set as iterations progress.
	Tools []types.Tool

	// ToolChoice is forwarded verbatim when set.
	ToolChoice interface{}

	// Temperature, TopP, MaxTokens, Stop, PresencePenalty, and
	// FrequencyPenalty mirror the client request.
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Stop             []string
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// CompletionResponse is a completed (non-streaming) upstream turn.
type CompletionResponse struct {
	// ID is the upstream completion id.
	ID string

	// Model is the model that answered.
	Model string

	// Content is the assistant text, possibly empty for tool-call turns.
	Content string

	// ToolCalls carries complete tool calls for "tool_calls" turns.
	ToolCalls []types.ToolCall

	// FinishReason is "stop", "length", or "tool_calls".
	FinishReason string

	// Usage is upstream token accounting.
	Usage types.Usage
}

// StreamChunk is one increment of an upstream streaming turn.
//
// Exactly one of the payload fields is typically populated: Delta for
// content, ToolCalls for tool-call fragments, FinishReason on the
// terminal chunk, Err when the stream failed mid-flight.
type StreamChunk struct {
	// Delta is incremental assistant text.
	Delta string

	// ToolCalls carries incremental tool-call fragments keyed by index.
	ToolCalls []types.ToolCallDelta

	// FinishReason is set on the upstream terminal chunk.
	FinishReason string

	// Usage is set when the upstream reports token accounting.
	Usage *types.Usage

	// Err terminates the stream with a failure. No further chunks follow.
	Err error
}
