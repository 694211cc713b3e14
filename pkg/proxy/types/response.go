package types

// ChatCompletionResponse is an OpenAI-compatible non-streaming response.
type ChatCompletionResponse struct {
	// ID uniquely identifies the completion (format: "chatcmpl-<id>").
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of completion creation.
	Created int64 `json:"created"`

	// Model is the model that produced the completion.
	Model string `json:"model"`

	// Choices holds the completion choices (the proxy emits exactly one).
	Choices []Choice `json:"choices"`

	// Usage contains token accounting.
	Usage Usage `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	// Index is the position of this choice.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason is "stop", "length", or "tool_calls".
	FinishReason string `json:"finish_reason"`
}

// Usage is token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionStreamChunk is one SSE data frame of a streaming response.
type ChatCompletionStreamChunk struct {
	// ID is shared by every chunk of one response.
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of chunk creation.
	Created int64 `json:"created"`

	// Model is the model the chunk is attributed to.
	Model string `json:"model"`

	// Choices holds the streaming choices (the proxy emits exactly one).
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice is a single choice inside a stream chunk.
type StreamChoice struct {
	// Index is the position of this choice.
	Index int `json:"index"`

	// Delta is the incremental payload.
	Delta Delta `json:"delta"`

	// FinishReason is null on every chunk except the terminal one.
	// A chunk never carries both non-empty content and a finish reason.
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental payload of a stream chunk.
type Delta struct {
	// Role is set on the first chunk of a turn only.
	Role string `json:"role,omitempty"`

	// Content is the incremental text.
	Content string `json:"content,omitempty"`

	// ToolCalls carries incremental tool-call fragments.
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is an incremental tool-call fragment. Upstream models
// split one tool call across many chunks: the first fragment for an
// index carries the id and function name, later fragments append to the
// arguments string.
type ToolCallDelta struct {
	// Index identifies which tool call of the turn this fragment
	// belongs to.
	Index int `json:"index"`

	// ID is set on the first fragment of a call.
	ID string `json:"id,omitempty"`

	// Type is "function" when present.
	Type string `json:"type,omitempty"`

	// Function carries the incremental name/arguments pieces.
	Function FunctionCallDelta `json:"function,omitempty"`
}

// FunctionCallDelta is the incremental function payload of a fragment.
type FunctionCallDelta struct {
	// Name is set on the first fragment of a call.
	Name string `json:"name,omitempty"`

	// Arguments is an arguments substring to append.
	Arguments string `json:"arguments,omitempty"`
}

// FinishReason values observed on upstream turns.
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonToolCalls = "tool_calls"
)
