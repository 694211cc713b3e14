package tools

import (
	"context"
	"encoding/json"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// Origin records where a tool definition came from.
type Origin string

const (
	// OriginRequest marks tools supplied inline with the client request.
	OriginRequest Origin = "request"

	// OriginRegistry marks tools registered out-of-band for the tenant.
	OriginRegistry Origin = "registry"
)

// Call is a normalized, immutable tool call. Arguments are already
// JSON-decoded; RawArguments preserves the original JSON text for wire
// passthrough.
type Call struct {
	ID           string
	Name         string
	Arguments    map[string]interface{}
	RawArguments string
	Origin       Origin
}

// Result is the outcome of executing one Call. A handler failure is
// carried in Error and echoed in Content so the model can see it; it
// never aborts the round.
type Result struct {
	CallID  string
	Name    string
	Content string
	Error   string
}

// ToMessage renders the result as a tool-role message for the follow-up
// model call.
func (r *Result) ToMessage() types.Message {
	return types.Message{
		Role:       "tool",
		Content:    r.Content,
		ToolCallID: r.CallID,
		Name:       r.Name,
	}
}

// Handler executes one tool call locally. The returned string becomes
// the tool message content; an error becomes a Result with Error set.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Registered is one tool stored in the registry for a base tenant.
// Either Handler or Endpoint dispatches the call; Handler wins when
// both are set.
type Registered struct {
	// Definition is the OpenAI-shaped tool definition offered upstream.
	Definition types.Tool `json:"definition"`

	// Endpoint is an HTTP URL the call is POSTed to when no local
	// handler exists.
	Endpoint string `json:"endpoint,omitempty"`

	// Handler is a local callback. Not serializable.
	Handler Handler `json:"-"`
}

// Name returns the function name from the definition.
func (r *Registered) Name() string {
	return r.Definition.Function.Name
}

// endpointPayload is the JSON body sent to a remote tool endpoint.
type endpointPayload struct {
	Name      string          `json:"name"`
	CallID    string          `json:"call_id"`
	Arguments json.RawMessage `json:"arguments"`
}
