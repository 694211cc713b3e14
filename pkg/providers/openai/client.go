package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy/types"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	*providers.HTTPProvider
	logger *slog.Logger
}

// NewClient creates an OpenAI-compatible provider client.
func NewClient(config providers.ProviderConfig) *Client {
	return &Client{
		HTTPProvider: providers.NewHTTPProvider(config),
		logger:       slog.Default().With("component", "providers.openai", "provider", config.Name),
	}
}

// wireRequest is the JSON body sent upstream.
type wireRequest struct {
	Model            string          `json:"model"`
	Messages         []types.Message `json:"messages"`
	Tools            []types.Tool    `json:"tools,omitempty"`
	ToolChoice       interface{}     `json:"tool_choice,omitempty"`
	Stream           bool            `json:"stream"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
}

// wireResponse is a non-streaming completion response.
type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage types.Usage `json:"usage"`
}

func (c *Client) encodeRequest(req *providers.CompletionRequest, stream bool) ([]byte, error) {
	body := wireRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Tools:            req.Tools,
		ToolChoice:       req.ToolChoice,
		Stream:           stream,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	return json.Marshal(body)
}

// SendCompletion performs a non-streaming chat completion.
func (c *Client) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	payload, err := c.encodeRequest(req, false)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.Config().BaseURL + "/chat/completions"
	resp, err := c.DoRequest(ctx, http.MethodPost, url, payload, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.ParseError{Provider: c.Name(), Cause: err}
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &providers.ParseError{Provider: c.Name(), Cause: err}
	}
	if len(wire.Choices) == 0 {
		return nil, &providers.ParseError{Provider: c.Name(), Cause: fmt.Errorf("response has no choices")}
	}

	choice := wire.Choices[0]
	return &providers.CompletionResponse{
		ID:           wire.ID,
		Model:        wire.Model,
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        wire.Usage,
	}, nil
}

// StreamCompletion performs a streaming chat completion and returns a
// channel of chunks. The channel is closed when the upstream stream
// ends; mid-stream failures arrive as a final chunk with Err set.
func (c *Client) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	payload, err := c.encodeRequest(req, true)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.Config().BaseURL + "/chat/completions"
	resp, err := c.DoRequest(ctx, http.MethodPost, url, payload, map[string]string{
		"Accept": "text/event-stream",
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *providers.StreamChunk, 16)
	go c.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}
