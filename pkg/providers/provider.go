package providers

import "context"

// Provider is the interface the proxy uses to talk to an upstream model
// endpoint. Implementations must respect context cancellation on every
// method: when the client disconnects mid-stream the controller cancels
// the context and no further upstream calls may be issued.
type Provider interface {
	// SendCompletion performs a non-streaming completion call. Transient
	// failures are retried with exponential backoff up to the configured
	// attempt count before an error is returned.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion performs a streaming completion call and returns
	// a channel of chunks. The channel is closed when the upstream turn
	// ends; a mid-stream failure is delivered as a final chunk with Err
	// set.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)

	// Name returns the provider's configured name.
	Name() string

	// Close releases pooled connections. The provider must not be used
	// afterwards.
	Close() error
}
