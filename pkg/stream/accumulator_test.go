package stream

import (
	"testing"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

func frag(index int, id, name, args string) types.ToolCallDelta {
	return types.ToolCallDelta{
		Index:    index,
		ID:       id,
		Function: types.FunctionCallDelta{Name: name, Arguments: args},
	}
}

func TestAccumulatorAssemblesFragments(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(frag(0, "call_1", "get_weather", ""))
	acc.Add(frag(0, "", "", `{"city":`))
	acc.Add(frag(0, "", "", `"Oslo"}`))

	calls := acc.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.ID != "call_1" {
		t.Errorf("id = %q", call.ID)
	}
	if call.Function.Name != "get_weather" {
		t.Errorf("name = %q", call.Function.Name)
	}
	if call.Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("arguments = %q", call.Function.Arguments)
	}
	if call.Type != "function" {
		t.Errorf("type = %q, want function default", call.Type)
	}
}

func TestAccumulatorInterleavedIndexes(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(frag(0, "call_a", "alpha", `{"a"`))
	acc.Add(frag(1, "call_b", "beta", `{"b"`))
	acc.Add(frag(0, "", "", `:1}`))
	acc.Add(frag(1, "", "", `:2}`))

	calls := acc.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Function.Name != "alpha" || calls[1].Function.Name != "beta" {
		t.Errorf("order = %s, %s", calls[0].Function.Name, calls[1].Function.Name)
	}
	if calls[0].Function.Arguments != `{"a":1}` {
		t.Errorf("alpha args = %q", calls[0].Function.Arguments)
	}
	if calls[1].Function.Arguments != `{"b":2}` {
		t.Errorf("beta args = %q", calls[1].Function.Arguments)
	}
}

func TestAccumulatorEmptyAndReset(t *testing.T) {
	acc := NewAccumulator()
	if !acc.Empty() {
		t.Error("new accumulator should be empty")
	}
	acc.Add(frag(0, "call_1", "f", "{}"))
	if acc.Empty() {
		t.Error("accumulator should not be empty after Add")
	}
	acc.Reset()
	if !acc.Empty() {
		t.Error("accumulator should be empty after Reset")
	}
	if len(acc.Calls()) != 0 {
		t.Error("Calls should be empty after Reset")
	}
}
