package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy/types"
)

// maxScanTokenSize accommodates large single-event payloads such as
// long tool-call argument fragments.
const maxScanTokenSize = 1024 * 1024

// wireStreamChunk is one decoded SSE event from the upstream.
type wireStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string                `json:"role,omitempty"`
			Content   string                `json:"content,omitempty"`
			ToolCalls []types.ToolCallDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *types.Usage `json:"usage,omitempty"`
}

// readStream consumes the upstream SSE body line by line and translates
// events into StreamChunks. It owns the body and the channel: both are
// closed before it returns.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- *providers.StreamChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var wire wireStreamChunk
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			c.logger.Warn("skipping undecodable stream event", "error", err)
			continue
		}

		chunk := &providers.StreamChunk{Usage: wire.Usage}
		if len(wire.Choices) > 0 {
			choice := wire.Choices[0]
			chunk.Delta = choice.Delta.Content
			chunk.ToolCalls = choice.Delta.ToolCalls
			if choice.FinishReason != nil {
				chunk.FinishReason = *choice.FinishReason
			}
		}
		if chunk.Delta == "" && len(chunk.ToolCalls) == 0 && chunk.FinishReason == "" && chunk.Usage == nil {
			continue
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		chunks <- &providers.StreamChunk{
			Err: &providers.StreamError{Provider: c.Name(), Message: "read upstream stream", Cause: err},
		}
	}
}
