package types

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
// It matches the OpenAI Chat Completions API format so that existing
// OpenAI SDKs work against the proxy without modification.
type ChatCompletionRequest struct {
	// Model is the model identifier. Optional; the proxy falls back to
	// its configured default model when empty.
	Model string `json:"model,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0). Optional.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the number of generated tokens. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0). Optional.
	TopP *float64 `json:"top_p,omitempty"`

	// Stream enables Server-Sent-Events streaming.
	Stream bool `json:"stream,omitempty"`

	// Stop lists up to 4 stop sequences. Optional.
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty (-2.0 to 2.0). Optional.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// FrequencyPenalty (-2.0 to 2.0). Optional.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// User is an opaque end-user identifier. Optional.
	User string `json:"user,omitempty"`

	// Tools lists tool definitions offered for this request, in addition
	// to any tools registered out-of-band for the tenant.
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice is "none", "auto", or a {"type":"function",...} object.
	ToolChoice interface{} `json:"tool_choice,omitempty"`
}

// Message is a single conversation message.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is a string for plain text or a []ContentPart array for
	// multimodal and file-bearing messages. Use Text and Parts to decode.
	Content interface{} `json:"content"`

	// Name optionally names the author.
	Name string `json:"name,omitempty"`

	// ToolCalls carries tool calls issued by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of a multi-part message content array.
type ContentPart struct {
	// Type is "text", "image_url", or "file_data".
	Type string `json:"type"`

	// Text carries the text for "text" parts.
	Text string `json:"text,omitempty"`

	// ImageURL carries the image reference for "image_url" parts.
	ImageURL map[string]interface{} `json:"image_url,omitempty"`

	// FileData carries an inline document for "file_data" parts.
	FileData *FileData `json:"file_data,omitempty"`
}

// FileData is an inline document attached to a message for ingestion
// into the tenant's knowledge store.
type FileData struct {
	// Name is the original file name.
	Name string `json:"name"`

	// Mime is the MIME type of the decoded bytes.
	Mime string `json:"mime"`

	// Data is the base64-encoded file content.
	Data string `json:"data"`
}

// Text returns the textual content of the message. String content is
// returned as is; part arrays are flattened to their text parts joined
// with newlines. Non-text parts are skipped.
func (m *Message) Text() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		parts, err := m.Parts()
		if err != nil {
			return fmt.Sprintf("%v", m.Content)
		}
		out := ""
		for _, p := range parts {
			if p.Type != "text" || p.Text == "" {
				continue
			}
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
		return out
	}
}

// Parts decodes the message content as a content-part array. Returns an
// empty slice for string content and an error when the array cannot be
// decoded.
func (m *Message) Parts() ([]ContentPart, error) {
	arr, ok := m.Content.([]interface{})
	if !ok {
		return nil, nil
	}
	// Round-trip through JSON rather than walking interface maps by hand.
	raw, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode content parts: %w", err)
	}
	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("decode content parts: %w", err)
	}
	return parts, nil
}

// Tool is a callable tool definition.
type Tool struct {
	// Type is always "function".
	Type string `json:"type"`

	// Function describes the callable function.
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a function the model may call.
type FunctionDefinition struct {
	// Name is the function name.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ToolCall is a complete tool call issued by the model.
type ToolCall struct {
	// ID uniquely identifies the call within the turn.
	ID string `json:"id"`

	// Type is always "function".
	Type string `json:"type"`

	// Function holds the name and raw JSON arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall is the name/arguments pair of a tool call.
type FunctionCall struct {
	// Name is the function to invoke.
	Name string `json:"name"`

	// Arguments is the raw JSON argument string as produced by the model.
	Arguments string `json:"arguments"`
}

// Validate checks required fields and value ranges.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages must contain at least one message"}
	}
	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0.0 and 2.0"}
	}
	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0.0 and 1.0"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be greater than 0"}
	}
	if len(r.Stop) > 4 {
		return &ValidationError{Field: "stop", Message: "stop sequences must not exceed 4"}
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2.0 || *r.PresencePenalty > 2.0) {
		return &ValidationError{Field: "presence_penalty", Message: "presence_penalty must be between -2.0 and 2.0"}
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2.0 || *r.FrequencyPenalty > 2.0) {
		return &ValidationError{Field: "frequency_penalty", Message: "frequency_penalty must be between -2.0 and 2.0"}
	}
	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "message role is required",
			}
		}
		if msg.Content == nil && len(msg.ToolCalls) == 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "message content is required when no tool_calls present",
			}
		}
	}
	return nil
}

// ValidationError is a request validation failure.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
