package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	MaxRequestBodySize = 10 * 1024 * 1024

	// RequestIDHeader propagates the request correlation id.
	RequestIDHeader = "X-Request-ID"
)

// ParseChatCompletionRequest decodes and validates a chat completion
// request body. The body is limited to MaxRequestBodySize.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(body) > MaxRequestBodySize {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if ok := asValidationError(err, &valErr); ok {
			return nil, &RequestError{
				Message: valErr.Message,
				Code:    types.CodeInvalidValue,
				Param:   valErr.Field,
			}
		}
		return nil, err
	}

	return &req, nil
}

func asValidationError(err error, target **types.ValidationError) bool {
	ve, ok := err.(*types.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}
