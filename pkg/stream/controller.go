package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/types"
	"cerebro-ai/cerebro/pkg/tenant"
	"cerebro-ai/cerebro/pkg/tools"
)

// State is the controller's position in the response lifecycle.
type State int

const (
	StateOpening State = iota
	StateStreamingUpstream
	StateToolsPending
	StateExecutingTools
	StateStreamingFollowup
	StateClosing
	StateDone
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreamingUpstream:
		return "streaming_upstream"
	case StateToolsPending:
		return "tools_pending"
	case StateExecutingTools:
		return "executing_tools"
	case StateStreamingFollowup:
		return "streaming_followup"
	case StateClosing:
		return "closing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config bounds one controller run.
type Config struct {
	// MaxIterations caps tool-execution rounds. After the cap a forced
	// completion call with no tools is issued. Default: 5.
	MaxIterations int

	// KeepAliveInterval is the maximum silent gap allowed on the SSE
	// stream while asynchronous work is outstanding. Default: 15s.
	KeepAliveInterval time.Duration

	// FullToolRounds is how many rounds receive the full tool set
	// before decay starts. Default: 2.
	FullToolRounds int

	// DecayedToolLimit is the most tools offered in the decayed middle
	// rounds. Default: 3.
	DecayedToolLimit int

	// OnKeepAlive observes every keep-alive comment written to the
	// stream. Optional.
	OnKeepAlive func()
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 15 * time.Second
	}
	if c.FullToolRounds <= 0 {
		c.FullToolRounds = 2
	}
	if c.DecayedToolLimit <= 0 {
		c.DecayedToolLimit = 3
	}
}

// Controller drives one chat completion as a bounded state machine.
// One controller serves exactly one request and is not reused.
type Controller struct {
	provider providers.Provider
	executor *tools.Executor
	config   Config
	logger   *slog.Logger

	id    string
	model string
	key   tenant.Key
	req   *providers.CompletionRequest

	state          State
	iteration      int
	contentEmitted bool
	finishReason   string
	roleSent       bool

	messages []types.Message
	toolset  []types.Tool
	pending  []*tools.Call
	results  []*tools.Result
	content  strings.Builder
	usage    types.Usage
}

// NewController creates a controller for one request. The message list
// must already include any merged memory context; toolset is the union
// of request-supplied and tenant-registered tools.
func NewController(provider providers.Provider, executor *tools.Executor, key tenant.Key, req *providers.CompletionRequest, config Config) *Controller {
	config.ApplyDefaults()
	id := "chatcmpl-" + uuid.NewString()
	return &Controller{
		provider: provider,
		executor: executor,
		config:   config,
		id:       id,
		model:    req.Model,
		key:      key,
		req:      req,
		messages: append([]types.Message(nil), req.Messages...),
		toolset:  req.Tools,
		logger: slog.Default().With(
			"component", "stream.controller",
			"completion_id", id,
			"tenant", key.String(),
		),
	}
}

// ID returns the completion id shared by every emitted chunk.
func (c *Controller) ID() string { return c.id }

// State returns the current machine state.
func (c *Controller) State() State { return c.state }

// Messages returns the full message list after the run, including
// assistant tool-call turns and tool results. Used for memory updates.
func (c *Controller) Messages() []types.Message { return c.messages }

// Iterations reports how many tool-execution rounds ran.
func (c *Controller) Iterations() int { return c.iteration }

// FinalContent returns all assistant content emitted during the run.
func (c *Controller) FinalContent() string { return c.content.String() }

// Usage returns accumulated upstream token accounting.
func (c *Controller) Usage() types.Usage { return c.usage }

// toolsForIteration applies tool decay: the full set for the first
// rounds, a small head of the set in the middle, and nothing from the
// penultimate round on, biasing the model toward a final answer.
func (c *Controller) toolsForIteration(iteration int) []types.Tool {
	switch {
	case iteration < c.config.FullToolRounds:
		return c.toolset
	case iteration < c.config.MaxIterations-1:
		if len(c.toolset) <= c.config.DecayedToolLimit {
			return c.toolset
		}
		return c.toolset[:c.config.DecayedToolLimit]
	default:
		return nil
	}
}

func (c *Controller) transition(to State) {
	c.logger.Debug("state transition", "from", c.state.String(), "to", to.String())
	c.state = to
}

// Run executes the state machine and writes the full SSE sequence to
// the writer, ending with the terminal chunk pair and [DONE]. The only
// error returned is a broken client connection; upstream failures are
// reported to the client in-stream and close the stream cleanly.
func (c *Controller) Run(ctx context.Context, writer *proxy.StreamWriter) error {
	keepalive := NewKeepAlive(writer, c.config.KeepAliveInterval, c.config.OnKeepAlive)
	stopKeepalive := keepalive.Start(ctx)
	defer stopKeepalive()

	forced := false
	for {
		if c.state == StateOpening {
			c.transition(StateStreamingUpstream)
		}

		calls, err := c.streamTurn(ctx, writer)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("client disconnected, abandoning stream")
				c.transition(StateDone)
				return ctx.Err()
			}
			c.logger.Error("upstream call failed", "error", err, "iteration", c.iteration)
			return c.closeWithError(writer, stopKeepalive, err)
		}

		c.pending = append(c.pending, calls...)
		if len(c.pending) == 0 {
			break
		}

		if forced || c.iteration >= c.config.MaxIterations {
			// Tool calls past the cap are ignored; one forced round
			// with no tools gives the model a chance to answer in text.
			c.logger.Warn("iteration cap reached, ignoring further tool calls",
				"dropped", len(c.pending),
			)
			c.dropDanglingToolTurn()
			c.pending = nil
			if forced {
				break
			}
			forced = true
			c.toolset = nil
			continue
		}

		c.transition(StateToolsPending)
		if err := c.executeRounds(ctx); err != nil {
			c.transition(StateDone)
			return err
		}
		c.transition(StateStreamingFollowup)
	}

	c.transition(StateClosing)
	stopKeepalive()

	if !c.contentEmitted {
		fallback := c.fallbackContent()
		if err := c.writeContent(writer, fallback); err != nil {
			return err
		}
	}
	if err := c.writeTerminalPair(writer); err != nil {
		return err
	}
	c.transition(StateDone)
	return nil
}

// streamTurn runs one upstream streaming call, forwarding content
// deltas verbatim and accumulating tool-call fragments. It returns the
// turn's normalized tool calls, empty when the model finished with a
// plain answer.
func (c *Controller) streamTurn(ctx context.Context, writer *proxy.StreamWriter) ([]*tools.Call, error) {
	req := *c.req
	req.Messages = c.messages
	req.Tools = c.toolsForIteration(c.iteration)
	if len(req.Tools) == 0 {
		req.ToolChoice = nil
	}

	chunks, err := c.provider.StreamCompletion(ctx, &req)
	if err != nil {
		return nil, err
	}

	acc := NewAccumulator()
	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Usage != nil {
			c.usage.PromptTokens += chunk.Usage.PromptTokens
			c.usage.CompletionTokens += chunk.Usage.CompletionTokens
			c.usage.TotalTokens += chunk.Usage.TotalTokens
		}
		if chunk.Delta != "" {
			if err := c.writeContent(writer, chunk.Delta); err != nil {
				return nil, err
			}
		}
		acc.AddAll(chunk.ToolCalls)
		if chunk.FinishReason != "" {
			c.finishReason = chunk.FinishReason
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if acc.Empty() {
		return nil, nil
	}

	raw := acc.Calls()
	normalized := tools.NormalizeAll(raw, tools.OriginRequest, c.logger)
	c.tagOrigins(normalized)

	// The assistant turn that requested the calls must enter the
	// transcript so each tool message answers a recorded call.
	if len(normalized) > 0 {
		kept := make([]types.ToolCall, 0, len(normalized))
		for _, call := range normalized {
			kept = append(kept, types.ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: types.FunctionCall{
					Name:      call.Name,
					Arguments: call.RawArguments,
				},
			})
		}
		c.messages = append(c.messages, types.Message{
			Role:      "assistant",
			Content:   nil,
			ToolCalls: kept,
		})
	}
	return normalized, nil
}

// executeRounds drains the pending queue in bounded batches. Every
// batch counts against the iteration cap. Calls still queued once the
// cap is spent are answered with an error result rather than executed,
// so each recorded tool call receives a tool message before the next
// model call without the cap being exceeded.
func (c *Controller) executeRounds(ctx context.Context) error {
	for len(c.pending) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.iteration >= c.config.MaxIterations {
			c.logger.Warn("iteration cap reached with calls still queued",
				"failed", len(c.pending),
			)
			for _, call := range c.pending {
				result := &tools.Result{
					CallID:  call.ID,
					Name:    call.Name,
					Content: "Error: tool execution budget exhausted",
					Error:   "tool execution budget exhausted",
				}
				c.results = append(c.results, result)
				c.messages = append(c.messages, result.ToMessage())
			}
			c.pending = nil
			return nil
		}
		c.transition(StateExecutingTools)
		c.iteration++

		batch := c.pending
		results, deferred := c.executor.ExecuteRound(ctx, c.key.Base, batch)
		c.pending = deferred

		for _, result := range results {
			c.results = append(c.results, result)
			c.messages = append(c.messages, result.ToMessage())
		}
		c.logger.Info("tool round complete",
			"iteration", c.iteration,
			"executed", len(results),
			"deferred", len(deferred),
		)
	}
	return nil
}

// tagOrigins marks calls that resolve through the tenant registry.
// Normalization defaults every call to the request origin; anything the
// registry knows for this tenant came from a registration instead.
func (c *Controller) tagOrigins(calls []*tools.Call) {
	if c.executor == nil {
		return
	}
	for _, call := range calls {
		if c.executor.IsRegistered(c.key.Base, call.Name) {
			call.Origin = tools.OriginRegistry
		}
	}
}

// dropDanglingToolTurn removes the trailing assistant tool-call message
// when its calls will never be answered, keeping the transcript valid
// for the next model call and for memory persistence.
func (c *Controller) dropDanglingToolTurn() {
	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		if last.Role == "assistant" && len(last.ToolCalls) > 0 {
			c.messages = c.messages[:n-1]
		}
	}
}

// writeContent emits one content chunk with a null finish reason. The
// first content chunk of the response carries the assistant role.
func (c *Controller) writeContent(writer *proxy.StreamWriter, content string) error {
	delta := types.Delta{Content: content}
	if !c.roleSent {
		delta.Role = "assistant"
		c.roleSent = true
	}
	chunk := &types.ChatCompletionStreamChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   c.model,
		Choices: []types.StreamChoice{{Index: 0, Delta: delta, FinishReason: nil}},
	}
	if err := writer.WriteChunk(chunk); err != nil {
		return err
	}
	if content != "" {
		c.contentEmitted = true
		c.content.WriteString(content)
	}
	return nil
}

// writeTerminalPair emits the closing two chunks and the [DONE]
// sentinel: an empty delta with a null finish reason, then an empty
// delta carrying finish_reason "stop". No chunk ever carries both
// content and a finish reason.
func (c *Controller) writeTerminalPair(writer *proxy.StreamWriter) error {
	now := time.Now().Unix()
	first := &types.ChatCompletionStreamChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: now,
		Model:   c.model,
		Choices: []types.StreamChoice{{Index: 0, Delta: types.Delta{}, FinishReason: nil}},
	}
	if err := writer.WriteChunk(first); err != nil {
		return err
	}

	reason := types.FinishReasonStop
	second := &types.ChatCompletionStreamChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: now,
		Model:   c.model,
		Choices: []types.StreamChoice{{Index: 0, Delta: types.Delta{}, FinishReason: &reason}},
	}
	if err := writer.WriteChunk(second); err != nil {
		return err
	}
	return writer.WriteDone()
}

// fallbackContent synthesizes a visible answer from tool results when
// the chain terminated without the model emitting any content. The
// client must never see an empty, silent completion.
func (c *Controller) fallbackContent() string {
	if len(c.results) == 0 {
		return "I was unable to produce a response. Please try again."
	}
	var b strings.Builder
	b.WriteString("I ran the requested tools but did not receive a final answer from the model. Tool results:\n")
	for _, r := range c.results {
		b.WriteString("\n- ")
		b.WriteString(r.Name)
		b.WriteString(": ")
		if r.Error != "" {
			b.WriteString("failed: ")
			b.WriteString(r.Error)
			continue
		}
		content := r.Content
		if len(content) > 400 {
			content = content[:400] + "..."
		}
		b.WriteString(content)
	}
	return b.String()
}

// closeWithError reports an exhausted upstream failure to the client as
// visible content, then closes the stream cleanly with "stop". A silent
// close is never an option once the SSE response has started.
func (c *Controller) closeWithError(writer *proxy.StreamWriter, stopKeepalive func(), cause error) error {
	c.transition(StateClosing)
	stopKeepalive()

	msg := fmt.Sprintf("The upstream model call failed and could not be retried further: %v", cause)
	if err := c.writeContent(writer, msg); err != nil {
		return err
	}
	if err := c.writeTerminalPair(writer); err != nil {
		return err
	}
	c.transition(StateDone)
	return nil
}

// Complete runs the same bounded tool loop without streaming, for
// clients that did not set stream=true. Tool decay, the iteration cap,
// and error-as-result semantics match the streaming path.
func (c *Controller) Complete(ctx context.Context) (*types.ChatCompletionResponse, error) {
	c.transition(StateStreamingUpstream)

	for {
		req := *c.req
		req.Messages = c.messages
		req.Tools = c.toolsForIteration(c.iteration)
		if len(req.Tools) == 0 {
			req.ToolChoice = nil
		}

		resp, err := c.provider.SendCompletion(ctx, &req)
		if err != nil {
			c.transition(StateDone)
			return nil, err
		}
		c.usage.PromptTokens += resp.Usage.PromptTokens
		c.usage.CompletionTokens += resp.Usage.CompletionTokens
		c.usage.TotalTokens += resp.Usage.TotalTokens
		if resp.Content != "" {
			c.content.WriteString(resp.Content)
			c.contentEmitted = true
		}
		c.finishReason = resp.FinishReason

		normalized := tools.NormalizeAll(resp.ToolCalls, tools.OriginRequest, c.logger)
		c.tagOrigins(normalized)
		if len(normalized) == 0 || c.iteration >= c.config.MaxIterations {
			break
		}

		kept := make([]types.ToolCall, 0, len(normalized))
		for _, call := range normalized {
			kept = append(kept, types.ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: types.FunctionCall{
					Name:      call.Name,
					Arguments: call.RawArguments,
				},
			})
		}
		c.messages = append(c.messages, types.Message{Role: "assistant", ToolCalls: kept})

		c.pending = append(c.pending, normalized...)
		if err := c.executeRounds(ctx); err != nil {
			c.transition(StateDone)
			return nil, err
		}
	}

	c.transition(StateClosing)
	content := c.content.String()
	if content == "" {
		content = c.fallbackContent()
	}
	finish := c.finishReason
	if finish == "" || finish == types.FinishReasonToolCalls {
		finish = types.FinishReasonStop
	}
	c.transition(StateDone)

	return &types.ChatCompletionResponse{
		ID:      c.id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   c.model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.Message{Role: "assistant", Content: content},
			FinishReason: finish,
		}},
		Usage: c.usage,
	}, nil
}
