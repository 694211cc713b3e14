package stream

import (
	"cerebro-ai/cerebro/pkg/proxy/types"
)

// Accumulator assembles tool-call fragments from a streaming turn into
// complete tool calls. Upstream splits one call across many chunks: the
// first fragment for an index carries the id and function name, later
// fragments append argument substrings. Fragments are keyed by index,
// and completed calls are returned in first-seen index order.
type Accumulator struct {
	order []int
	calls map[int]*partialCall
}

type partialCall struct {
	id        string
	callType  string
	name      string
	arguments string
}

// NewAccumulator creates an empty accumulator for one upstream turn.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*partialCall)}
}

// Add folds one fragment into the accumulator.
func (a *Accumulator) Add(delta types.ToolCallDelta) {
	pc, ok := a.calls[delta.Index]
	if !ok {
		pc = &partialCall{}
		a.calls[delta.Index] = pc
		a.order = append(a.order, delta.Index)
	}
	if delta.ID != "" {
		pc.id = delta.ID
	}
	if delta.Type != "" {
		pc.callType = delta.Type
	}
	if delta.Function.Name != "" {
		pc.name = delta.Function.Name
	}
	pc.arguments += delta.Function.Arguments
}

// AddAll folds a chunk's fragments into the accumulator.
func (a *Accumulator) AddAll(deltas []types.ToolCallDelta) {
	for _, d := range deltas {
		a.Add(d)
	}
}

// Empty reports whether any fragments were seen this turn.
func (a *Accumulator) Empty() bool {
	return len(a.order) == 0
}

// Calls returns the assembled tool calls in first-seen index order.
// Assembly is purely structural; validation happens in normalization.
func (a *Accumulator) Calls() []types.ToolCall {
	out := make([]types.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		pc := a.calls[idx]
		callType := pc.callType
		if callType == "" {
			callType = "function"
		}
		out = append(out, types.ToolCall{
			ID:   pc.id,
			Type: callType,
			Function: types.FunctionCall{
				Name:      pc.name,
				Arguments: pc.arguments,
			},
		})
	}
	return out
}

// Reset clears the accumulator for the next upstream turn.
func (a *Accumulator) Reset() {
	a.order = a.order[:0]
	a.calls = make(map[int]*partialCall)
}
