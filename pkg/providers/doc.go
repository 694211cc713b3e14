// Package providers contains the upstream model-provider layer.
//
// The proxy speaks the OpenAI chat-completions protocol on both sides,
// so providers operate directly on the wire types from pkg/proxy/types.
// Provider is the interface the stream controller and the summarizer
// consume; HTTPProvider is the shared base carrying connection pooling,
// bounded retry with exponential backoff, and health tracking. The
// openai subpackage implements the interface for any OpenAI-compatible
// endpoint.
package providers
