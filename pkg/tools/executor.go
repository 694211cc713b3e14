package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxCallsPerRound caps how many tool calls one execution round may
	// run. Excess calls are deferred to the next round, never dropped.
	MaxCallsPerRound = 8

	// maxEndpointResponseBytes bounds a remote tool's response body.
	maxEndpointResponseBytes = 1 << 20
)

// ExecutorConfig configures the tool executor.
type ExecutorConfig struct {
	// Concurrency caps parallel tool executions within a round.
	// Default: 4.
	Concurrency int

	// EndpointTimeout bounds one remote tool dispatch. Default: 30s.
	EndpointTimeout time.Duration

	// Observer, when set, is told the outcome of every call. Status is
	// "success", "error", or "deferred"; duration is zero for deferred
	// calls. Optional.
	Observer func(base, tool, status string, duration time.Duration)
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *ExecutorConfig) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.EndpointTimeout <= 0 {
		c.EndpointTimeout = 30 * time.Second
	}
}

// Executor runs normalized tool calls against local handlers and the
// tenant registry. Handler resolution order: local handlers first, then
// the tenant's registered set.
type Executor struct {
	registry *Registry
	local    map[string]Handler
	config   ExecutorConfig
	client   *http.Client
	logger   *slog.Logger
}

// NewExecutor creates an executor over the given registry. The local
// map may be nil when no in-process handlers exist.
func NewExecutor(registry *Registry, local map[string]Handler, config ExecutorConfig) *Executor {
	config.ApplyDefaults()
	return &Executor{
		registry: registry,
		local:    local,
		config:   config,
		client:   &http.Client{Timeout: config.EndpointTimeout},
		logger:   slog.Default().With("component", "tools.executor"),
	}
}

// ExecuteRound runs up to MaxCallsPerRound calls concurrently and
// returns their results in call order plus any calls deferred to the
// next round. A handler failure becomes a Result with Error set; the
// round always completes.
func (e *Executor) ExecuteRound(ctx context.Context, base string, calls []*Call) ([]*Result, []*Call) {
	var deferred []*Call
	if len(calls) > MaxCallsPerRound {
		deferred = calls[MaxCallsPerRound:]
		calls = calls[:MaxCallsPerRound]
		e.logger.Info("deferring excess tool calls to next round",
			"tenant", base,
			"executing", len(calls),
			"deferred", len(deferred),
		)
		for _, call := range deferred {
			e.observe(base, call.Name, "deferred", 0)
		}
	}

	results := make([]*Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.execute(gctx, base, call)
			return nil
		})
	}
	g.Wait()

	for i, call := range calls {
		if results[i] == nil {
			results[i] = errorResult(call, "execution cancelled")
		}
	}
	return results, deferred
}

// execute runs one call and never returns nil.
func (e *Executor) execute(ctx context.Context, base string, call *Call) *Result {
	start := time.Now()
	result := e.dispatch(ctx, base, call)
	elapsed := time.Since(start)

	if result.Error != "" {
		e.observe(base, call.Name, "error", elapsed)
		e.logger.Warn("tool call failed",
			"tenant", base,
			"tool", call.Name,
			"call_id", call.ID,
			"duration", elapsed,
			"error", result.Error,
		)
	} else {
		e.observe(base, call.Name, "success", elapsed)
		e.logger.Debug("tool call completed",
			"tenant", base,
			"tool", call.Name,
			"call_id", call.ID,
			"duration", elapsed,
		)
	}
	return result
}

func (e *Executor) observe(base, tool, status string, duration time.Duration) {
	if e.config.Observer != nil {
		e.config.Observer(base, tool, status, duration)
	}
}

// IsRegistered reports whether the tenant registry resolves the tool
// name for the given base tenant. Local handlers do not count; they are
// process-wide, not tenant registrations.
func (e *Executor) IsRegistered(base, name string) bool {
	if e.registry == nil {
		return false
	}
	_, ok := e.registry.Get(base, name)
	return ok
}

func (e *Executor) dispatch(ctx context.Context, base string, call *Call) *Result {
	if handler, ok := e.local[call.Name]; ok {
		return e.runHandler(ctx, call, handler)
	}
	if reg, ok := e.registry.Get(base, call.Name); ok {
		if reg.Handler != nil {
			return e.runHandler(ctx, call, reg.Handler)
		}
		if reg.Endpoint != "" {
			return e.dispatchEndpoint(ctx, call, reg.Endpoint)
		}
	}
	return errorResult(call, fmt.Sprintf("no handler registered for tool %q", call.Name))
}

// runHandler invokes a local handler, converting panics into error
// results so one misbehaving tool cannot take down the stream.
func (e *Executor) runHandler(ctx context.Context, call *Call, handler Handler) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = errorResult(call, fmt.Sprintf("tool handler panicked: %v", r))
		}
	}()

	content, err := handler(ctx, call.Arguments)
	if err != nil {
		return errorResult(call, err.Error())
	}
	return &Result{CallID: call.ID, Name: call.Name, Content: content}
}

// dispatchEndpoint POSTs the call to a remote tool endpoint. The raw
// response body becomes the tool content.
func (e *Executor) dispatchEndpoint(ctx context.Context, call *Call, endpoint string) *Result {
	payload, err := json.Marshal(endpointPayload{
		Name:      call.Name,
		CallID:    call.ID,
		Arguments: json.RawMessage(call.RawArguments),
	})
	if err != nil {
		return errorResult(call, fmt.Sprintf("encode arguments: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errorResult(call, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return errorResult(call, fmt.Sprintf("dispatch to endpoint: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEndpointResponseBytes))
	if err != nil {
		return errorResult(call, fmt.Sprintf("read endpoint response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResult(call, fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, string(body)))
	}
	return &Result{CallID: call.ID, Name: call.Name, Content: string(body)}
}

func errorResult(call *Call, msg string) *Result {
	return &Result{
		CallID:  call.ID,
		Name:    call.Name,
		Content: "Error: " + msg,
		Error:   msg,
	}
}
