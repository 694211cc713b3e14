package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// MalformedToolCallError is a tool call from upstream that cannot be
// normalized. The offending call is dropped; sibling calls in the same
// turn still execute.
type MalformedToolCallError struct {
	CallID string
	Reason string
}

// Error implements the error interface.
func (e *MalformedToolCallError) Error() string {
	if e.CallID == "" {
		return "malformed tool call: " + e.Reason
	}
	return fmt.Sprintf("malformed tool call %s: %s", e.CallID, e.Reason)
}

// Normalize converts an upstream tool call into the canonical Call.
// It fails with MalformedToolCallError when the name is missing or the
// arguments are not valid JSON. Empty arguments normalize to an empty
// map.
func Normalize(tc types.ToolCall, origin Origin) (*Call, error) {
	if tc.Function.Name == "" {
		return nil, &MalformedToolCallError{CallID: tc.ID, Reason: "missing function name"}
	}

	args := map[string]interface{}{}
	raw := tc.Function.Arguments
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, &MalformedToolCallError{
				CallID: tc.ID,
				Reason: fmt.Sprintf("arguments are not a JSON object: %v", err),
			}
		}
	} else {
		raw = "{}"
	}

	return &Call{
		ID:           tc.ID,
		Name:         tc.Function.Name,
		Arguments:    args,
		RawArguments: raw,
		Origin:       origin,
	}, nil
}

// NormalizeMap converts a plain mapping shape, as produced by providers
// that decode tool calls into generic JSON, into the canonical Call.
// Accepted layouts: {"id","function":{"name","arguments"}} and the flat
// {"id","name","arguments"} form. Arguments may be a JSON string or an
// already-decoded object.
func NormalizeMap(m map[string]interface{}, origin Origin) (*Call, error) {
	id, _ := m["id"].(string)

	name, _ := m["name"].(string)
	var rawArgs interface{} = m["arguments"]
	if fn, ok := m["function"].(map[string]interface{}); ok {
		if n, ok := fn["name"].(string); ok && n != "" {
			name = n
		}
		if a, present := fn["arguments"]; present {
			rawArgs = a
		}
	}
	if name == "" {
		return nil, &MalformedToolCallError{CallID: id, Reason: "missing function name"}
	}

	args := map[string]interface{}{}
	rawText := "{}"
	switch a := rawArgs.(type) {
	case nil:
	case string:
		if a != "" {
			if err := json.Unmarshal([]byte(a), &args); err != nil {
				return nil, &MalformedToolCallError{
					CallID: id,
					Reason: fmt.Sprintf("arguments are not a JSON object: %v", err),
				}
			}
			rawText = a
		}
	case map[string]interface{}:
		args = a
		encoded, err := json.Marshal(a)
		if err != nil {
			return nil, &MalformedToolCallError{CallID: id, Reason: "arguments cannot be encoded"}
		}
		rawText = string(encoded)
	default:
		return nil, &MalformedToolCallError{
			CallID: id,
			Reason: fmt.Sprintf("unsupported arguments type %T", rawArgs),
		}
	}

	return &Call{
		ID:           id,
		Name:         name,
		Arguments:    args,
		RawArguments: rawText,
		Origin:       origin,
	}, nil
}

// NormalizeAll normalizes a full turn's tool calls, dropping malformed
// ones with a diagnostic and keeping the rest in order.
func NormalizeAll(calls []types.ToolCall, origin Origin, logger *slog.Logger) []*Call {
	out := make([]*Call, 0, len(calls))
	for _, tc := range calls {
		call, err := Normalize(tc, origin)
		if err != nil {
			if logger != nil {
				logger.Warn("dropping malformed tool call", "call_id", tc.ID, "error", err)
			}
			continue
		}
		out = append(out, call)
	}
	return out
}
