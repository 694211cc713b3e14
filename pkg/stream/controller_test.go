package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/tenant"
	"cerebro-ai/cerebro/pkg/tools"
)

// scriptedTurn is one upstream streaming turn served by fakeProvider.
type scriptedTurn struct {
	content   []string
	toolCalls []types.ToolCallDelta
	finish    string
	err       error
	delay     time.Duration
}

// fakeProvider serves scripted turns in order and records the tool set
// offered on each call.
type fakeProvider struct {
	turns     []scriptedTurn
	calls     int
	toolsSeen [][]types.Tool
	messages  [][]types.Message
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) nextTurn(req *providers.CompletionRequest) scriptedTurn {
	f.toolsSeen = append(f.toolsSeen, req.Tools)
	f.messages = append(f.messages, append([]types.Message(nil), req.Messages...))
	turn := f.turns[len(f.turns)-1]
	if f.calls < len(f.turns) {
		turn = f.turns[f.calls]
	}
	f.calls++
	return turn
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	turn := f.nextTurn(req)
	if turn.err != nil && len(turn.content) == 0 && len(turn.toolCalls) == 0 {
		return nil, turn.err
	}
	out := make(chan *providers.StreamChunk, 16)
	go func() {
		defer close(out)
		if turn.delay > 0 {
			select {
			case <-time.After(turn.delay):
			case <-ctx.Done():
				return
			}
		}
		for _, c := range turn.content {
			out <- &providers.StreamChunk{Delta: c}
		}
		for _, tc := range turn.toolCalls {
			out <- &providers.StreamChunk{ToolCalls: []types.ToolCallDelta{tc}}
		}
		if turn.err != nil {
			out <- &providers.StreamChunk{Err: turn.err}
			return
		}
		out <- &providers.StreamChunk{FinishReason: turn.finish}
	}()
	return out, nil
}

func (f *fakeProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	turn := f.nextTurn(req)
	if turn.err != nil {
		return nil, turn.err
	}
	acc := NewAccumulator()
	acc.AddAll(turn.toolCalls)
	return &providers.CompletionResponse{
		ID:           "cmpl-fake",
		Model:        req.Model,
		Content:      strings.Join(turn.content, ""),
		ToolCalls:    acc.Calls(),
		FinishReason: turn.finish,
	}, nil
}

func completeCall(id, name, args string) types.ToolCallDelta {
	return types.ToolCallDelta{
		Index:    0,
		ID:       id,
		Type:     "function",
		Function: types.FunctionCallDelta{Name: name, Arguments: args},
	}
}

// sseFrames splits a recorded SSE body into frames.
func sseFrames(body string) []string {
	var frames []string
	for _, f := range strings.Split(body, "\n\n") {
		if f != "" {
			frames = append(frames, f)
		}
	}
	return frames
}

// checkTerminalSequence asserts the last three frames are the terminal
// chunk pair followed by [DONE].
func checkTerminalSequence(t *testing.T, frames []string) {
	t.Helper()
	if len(frames) < 3 {
		t.Fatalf("too few frames: %d", len(frames))
	}
	last := frames[len(frames)-1]
	if last != "data: [DONE]" {
		t.Errorf("last frame = %q, want [DONE]", last)
	}
	pairFirst := frames[len(frames)-3]
	pairSecond := frames[len(frames)-2]
	if !strings.Contains(pairFirst, `"finish_reason":null`) {
		t.Errorf("first terminal chunk should have null finish reason: %q", pairFirst)
	}
	if !strings.Contains(pairSecond, `"finish_reason":"stop"`) {
		t.Errorf("second terminal chunk should finish with stop: %q", pairSecond)
	}
	if strings.Contains(pairSecond, `"content"`) {
		t.Errorf("finish chunk must not carry content: %q", pairSecond)
	}
	// No data frame may carry both content and a finish reason.
	for _, f := range frames {
		if strings.HasPrefix(f, "data: {") &&
			strings.Contains(f, `"content":`) &&
			!strings.Contains(f, `"finish_reason":null`) {
			t.Errorf("chunk carries both content and finish reason: %q", f)
		}
	}
}

func newTestController(provider providers.Provider, exec *tools.Executor, req *providers.CompletionRequest, config Config) *Controller {
	key := tenant.Key{Base: "acme", Session: "s1"}
	if req.Model == "" {
		req.Model = "gpt-4o"
	}
	if len(req.Messages) == 0 {
		req.Messages = []types.Message{{Role: "user", Content: "hi"}}
	}
	return NewController(provider, exec, key, req, config)
}

func echoExecutor(t *testing.T, responses map[string]string) *tools.Executor {
	t.Helper()
	local := map[string]tools.Handler{}
	for name, resp := range responses {
		local[name] = func(ctx context.Context, args map[string]interface{}) (string, error) {
			return resp, nil
		}
	}
	return tools.NewExecutor(tools.NewRegistry(), local, tools.ExecutorConfig{})
}

func TestRunPlainText(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{content: []string{"Hel", "lo"}, finish: types.FinishReasonStop},
	}}
	ctrl := newTestController(provider, echoExecutor(t, nil), &providers.CompletionRequest{}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "Hel") || !strings.Contains(body, "lo") {
		t.Errorf("content missing from stream: %q", body)
	}
	checkTerminalSequence(t, sseFrames(body))
	if ctrl.State() != StateDone {
		t.Errorf("state = %s, want done", ctrl.State())
	}
	if ctrl.FinalContent() != "Hello" {
		t.Errorf("final content = %q", ctrl.FinalContent())
	}
}

func TestRunToolCallThenAnswer(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []types.ToolCallDelta{completeCall("call_1", "get_weather", `{"city":"Oslo"}`)},
			finish:    types.FinishReasonToolCalls,
		},
		{content: []string{"It is 12C in Oslo."}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"get_weather": `{"temp":12}`})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{
		Tools: []types.Tool{{Type: "function", Function: types.FunctionDefinition{Name: "get_weather"}}},
	}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
	// Follow-up must carry the assistant tool-call turn and its answer.
	followup := provider.messages[1]
	var sawAssistant, sawTool bool
	for _, m := range followup {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 {
			sawAssistant = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawTool = true
			if m.Text() != `{"temp":12}` {
				t.Errorf("tool content = %q", m.Text())
			}
		}
	}
	if !sawAssistant || !sawTool {
		t.Errorf("follow-up transcript incomplete: assistant=%v tool=%v", sawAssistant, sawTool)
	}
	checkTerminalSequence(t, sseFrames(rec.Body.String()))
	if !strings.Contains(ctrl.FinalContent(), "12C") {
		t.Errorf("final content = %q", ctrl.FinalContent())
	}
}

func TestRunIterationCapForcesCompletion(t *testing.T) {
	// Every turn requests another tool call; the controller must stop
	// executing at the cap and force a final no-tools turn.
	greedy := scriptedTurn{
		toolCalls: []types.ToolCallDelta{completeCall("call_x", "ping", "{}")},
		finish:    types.FinishReasonToolCalls,
	}
	provider := &fakeProvider{turns: []scriptedTurn{greedy}}
	exec := echoExecutor(t, map[string]string{"ping": "ok"})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{
		Tools: []types.Tool{{Type: "function", Function: types.FunctionDefinition{Name: "ping"}}},
	}, Config{MaxIterations: 3})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 3 tool rounds plus the triggering turn, the post-cap turn, and
	// one forced no-tools turn.
	if ctrl.iteration != 3 {
		t.Errorf("iterations = %d, want 3", ctrl.iteration)
	}
	last := provider.toolsSeen[len(provider.toolsSeen)-1]
	if len(last) != 0 {
		t.Errorf("forced round offered %d tools, want 0", len(last))
	}
	checkTerminalSequence(t, sseFrames(rec.Body.String()))
	if ctrl.FinalContent() == "" {
		t.Error("fallback content should have fired")
	}
}

func TestRunToolDecay(t *testing.T) {
	greedy := scriptedTurn{
		toolCalls: []types.ToolCallDelta{completeCall("call_x", "t0", "{}")},
		finish:    types.FinishReasonToolCalls,
	}
	provider := &fakeProvider{turns: []scriptedTurn{
		greedy, greedy, greedy, greedy,
		{content: []string{"done"}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"t0": "ok"})

	var toolset []types.Tool
	for i := 0; i < 6; i++ {
		toolset = append(toolset, types.Tool{
			Type:     "function",
			Function: types.FunctionDefinition{Name: fmt.Sprintf("t%d", i)},
		})
	}
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{Tools: toolset}, Config{
		MaxIterations:    5,
		FullToolRounds:   2,
		DecayedToolLimit: 3,
	})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCounts := []int{6, 6, 3, 3, 0}
	for i, want := range wantCounts {
		if i >= len(provider.toolsSeen) {
			break
		}
		if got := len(provider.toolsSeen[i]); got != want {
			t.Errorf("turn %d offered %d tools, want %d", i, got, want)
		}
	}
}

func TestRunToolErrorFedBack(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []types.ToolCallDelta{completeCall("call_1", "flaky", "{}")},
			finish:    types.FinishReasonToolCalls,
		},
		{content: []string{"The tool failed, sorry."}, finish: types.FinishReasonStop},
	}}
	local := map[string]tools.Handler{
		"flaky": func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", errors.New("backend unavailable")
		},
	}
	exec := tools.NewExecutor(tools.NewRegistry(), local, tools.ExecutorConfig{})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	followup := provider.messages[1]
	var sawError bool
	for _, m := range followup {
		if m.Role == "tool" && strings.Contains(m.Text(), "backend unavailable") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("tool error not fed back to the model")
	}
	checkTerminalSequence(t, sseFrames(rec.Body.String()))
}

func TestRunMalformedSiblingDropped(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []types.ToolCallDelta{
				completeCall("call_1", "good", "{}"),
				{Index: 1, ID: "call_2", Function: types.FunctionCallDelta{Arguments: "{}"}},
			},
			finish: types.FinishReasonToolCalls,
		},
		{content: []string{"ok"}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"good": "ran"})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	followup := provider.messages[1]
	var toolMessages int
	for _, m := range followup {
		if m.Role == "tool" {
			toolMessages++
			if m.ToolCallID != "call_1" {
				t.Errorf("unexpected tool message for %s", m.ToolCallID)
			}
		}
	}
	if toolMessages != 1 {
		t.Errorf("tool messages = %d, want 1 (malformed sibling dropped)", toolMessages)
	}
}

func TestRunFallbackWhenNoContent(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []types.ToolCallDelta{completeCall("call_1", "lookup", "{}")},
			finish:    types.FinishReasonToolCalls,
		},
		{finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"lookup": "result text"})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ctrl.FinalContent() == "" {
		t.Fatal("fallback content did not fire")
	}
	if !strings.Contains(ctrl.FinalContent(), "lookup") {
		t.Errorf("fallback should mention the tool: %q", ctrl.FinalContent())
	}
	checkTerminalSequence(t, sseFrames(rec.Body.String()))
}

func TestRunUpstreamFailureStreamedAsContent(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{err: errors.New("connection refused")},
	}}
	ctrl := newTestController(provider, echoExecutor(t, nil), &providers.CompletionRequest{}, Config{})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "connection refused") {
		t.Errorf("error not visible to client: %q", body)
	}
	checkTerminalSequence(t, sseFrames(body))
}

func TestRunKeepAliveFillsSilentGaps(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{delay: 150 * time.Millisecond, content: []string{"late"}, finish: types.FinishReasonStop},
	}}
	ctrl := newTestController(provider, echoExecutor(t, nil), &providers.CompletionRequest{}, Config{
		KeepAliveInterval: 40 * time.Millisecond,
	})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, ": keep-alive") {
		t.Errorf("expected keep-alive comment frames during silence: %q", body)
	}
	checkTerminalSequence(t, sseFrames(body))
}

func TestRunClientDisconnect(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{delay: time.Second, content: []string{"never"}, finish: types.FinishReasonStop},
	}}
	ctrl := newTestController(provider, echoExecutor(t, nil), &providers.CompletionRequest{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	rec := httptest.NewRecorder()
	err := ctrl.Run(ctx, proxy.NewStreamWriter(rec))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Error("abandoned stream must not emit [DONE]")
	}
}

func TestCompleteNonStreaming(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{
			toolCalls: []types.ToolCallDelta{completeCall("call_1", "get_weather", `{"city":"Oslo"}`)},
			finish:    types.FinishReasonToolCalls,
		},
		{content: []string{"It is 12C."}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"get_weather": `{"temp":12}`})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{})

	resp, err := ctrl.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d", len(resp.Choices))
	}
	if resp.Choices[0].Message.Text() != "It is 12C." {
		t.Errorf("content = %q", resp.Choices[0].Message.Text())
	}
	if resp.Choices[0].FinishReason != types.FinishReasonStop {
		t.Errorf("finish = %q", resp.Choices[0].FinishReason)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}
}

func TestDeferredCallsCountAgainstIterations(t *testing.T) {
	// 10 calls in one turn exceed the per-round cap, so draining them
	// takes two rounds and consumes two iterations.
	var deltas []types.ToolCallDelta
	for i := 0; i < tools.MaxCallsPerRound+2; i++ {
		deltas = append(deltas, types.ToolCallDelta{
			Index:    i,
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: types.FunctionCallDelta{Name: "noop", Arguments: "{}"},
		})
	}
	provider := &fakeProvider{turns: []scriptedTurn{
		{toolCalls: deltas, finish: types.FinishReasonToolCalls},
		{content: []string{"done"}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"noop": "ok"})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{MaxIterations: 5})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ctrl.iteration != 2 {
		t.Errorf("iterations = %d, want 2", ctrl.iteration)
	}
	// All calls answered before the follow-up model call.
	followup := provider.messages[1]
	var toolMessages int
	for _, m := range followup {
		if m.Role == "tool" {
			toolMessages++
		}
	}
	if toolMessages != tools.MaxCallsPerRound+2 {
		t.Errorf("tool messages = %d, want %d", toolMessages, tools.MaxCallsPerRound+2)
	}
}

func TestRunDrainStopsAtIterationCap(t *testing.T) {
	// Three rounds' worth of calls in one turn, but only two iterations
	// of budget. The third batch must not execute; its calls get error
	// results so the transcript stays answered.
	var deltas []types.ToolCallDelta
	for i := 0; i < 3*tools.MaxCallsPerRound; i++ {
		deltas = append(deltas, types.ToolCallDelta{
			Index:    i,
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: types.FunctionCallDelta{Name: "noop", Arguments: "{}"},
		})
	}
	provider := &fakeProvider{turns: []scriptedTurn{
		{toolCalls: deltas, finish: types.FinishReasonToolCalls},
		{content: []string{"done"}, finish: types.FinishReasonStop},
	}}
	exec := echoExecutor(t, map[string]string{"noop": "ok"})
	ctrl := newTestController(provider, exec, &providers.CompletionRequest{}, Config{MaxIterations: 2})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if ctrl.Iterations() > 2 {
		t.Errorf("iterations = %d, want at most 2", ctrl.Iterations())
	}
	// Every recorded call is answered, executed or not.
	followup := provider.messages[1]
	var toolMessages, exhausted int
	for _, m := range followup {
		if m.Role == "tool" {
			toolMessages++
			if strings.Contains(m.Text(), "budget exhausted") {
				exhausted++
			}
		}
	}
	if toolMessages != 3*tools.MaxCallsPerRound {
		t.Errorf("tool messages = %d, want %d", toolMessages, 3*tools.MaxCallsPerRound)
	}
	if exhausted != tools.MaxCallsPerRound {
		t.Errorf("exhausted results = %d, want %d", exhausted, tools.MaxCallsPerRound)
	}
	checkTerminalSequence(t, sseFrames(rec.Body.String()))
}

func TestToolCallOriginFromRegistry(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register("acme", []tools.Registered{{
		Definition: types.Tool{Type: "function", Function: types.FunctionDefinition{Name: "lookup"}},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "found", nil
		},
	}})
	exec := tools.NewExecutor(registry, nil, tools.ExecutorConfig{})
	ctrl := newTestController(idleProvider(), exec, &providers.CompletionRequest{}, Config{})

	calls := []*tools.Call{
		{ID: "c1", Name: "lookup", Origin: tools.OriginRequest},
		{ID: "c2", Name: "inline", Origin: tools.OriginRequest},
	}
	ctrl.tagOrigins(calls)

	if calls[0].Origin != tools.OriginRegistry {
		t.Errorf("registered tool origin = %q, want %q", calls[0].Origin, tools.OriginRegistry)
	}
	if calls[1].Origin != tools.OriginRequest {
		t.Errorf("inline tool origin = %q, want %q", calls[1].Origin, tools.OriginRequest)
	}
}

// idleProvider returns a provider that is never called; origin tagging
// needs only the controller's executor and tenant key.
func idleProvider() *fakeProvider {
	return &fakeProvider{turns: []scriptedTurn{{finish: types.FinishReasonStop}}}
}

func TestRunKeepAliveObserved(t *testing.T) {
	provider := &fakeProvider{turns: []scriptedTurn{
		{delay: 150 * time.Millisecond, content: []string{"late"}, finish: types.FinishReasonStop},
	}}
	var observed int
	ctrl := newTestController(provider, echoExecutor(t, nil), &providers.CompletionRequest{}, Config{
		KeepAliveInterval: 40 * time.Millisecond,
		OnKeepAlive:       func() { observed++ },
	})

	rec := httptest.NewRecorder()
	if err := ctrl.Run(context.Background(), proxy.NewStreamWriter(rec)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if observed == 0 {
		t.Error("keep-alive frames were written but never observed")
	}
	if got := strings.Count(rec.Body.String(), ": keep-alive"); got != observed {
		t.Errorf("observed %d keep-alives, stream carries %d", observed, got)
	}
}
