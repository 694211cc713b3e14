package proxy

import (
	"errors"
	"fmt"

	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy/types"
)

// RequestError is a client-side request failure (parse or validation).
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts the error to the OpenAI envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}

// HandleError maps internal errors onto OpenAI-compatible error
// responses with appropriate HTTP status codes.
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var upErr *providers.UpstreamError
	if errors.As(err, &upErr) {
		switch {
		case upErr.StatusCode == 401 || upErr.StatusCode == 403:
			return types.NewErrorResponse(upErr.Error(), types.ErrorTypeAuthentication, "", "authentication_failed")
		case upErr.StatusCode == 429:
			return types.NewErrorResponse(upErr.Error(), types.ErrorTypeRateLimitExceeded, "", "rate_limit_exceeded")
		case upErr.StatusCode >= 400 && upErr.StatusCode < 500:
			return types.NewInvalidRequestError(upErr.Error(), "", types.CodeUpstreamError)
		default:
			return types.NewBadGatewayError(upErr.Error())
		}
	}

	var timeoutErr *providers.TimeoutError
	if errors.As(err, &timeoutErr) {
		return types.NewGatewayTimeoutError(
			fmt.Sprintf("Upstream request timed out: %v", timeoutErr),
		)
	}

	var parseErr *providers.ParseError
	if errors.As(err, &parseErr) {
		return types.NewBadGatewayError(
			fmt.Sprintf("Failed to parse upstream response: %v", parseErr),
		)
	}

	var streamErr *providers.StreamError
	if errors.As(err, &streamErr) {
		return types.NewBadGatewayError(
			fmt.Sprintf("Upstream stream failed: %v", streamErr),
		)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}
