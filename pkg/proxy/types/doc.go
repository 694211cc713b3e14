// Package types defines the OpenAI-compatible wire types used on the
// client-facing surface of the proxy.
//
// The request, response, and streaming chunk structures mirror the OpenAI
// Chat Completions API schema exactly, so any OpenAI SDK can talk to the
// proxy unchanged. The only extension is the "file_data" content part,
// which lets callers attach documents inline for ingestion into the
// tenant's knowledge store.
//
// Streaming responses use Server-Sent Events with one
// ChatCompletionStreamChunk per data frame. Tool calls arrive on the
// stream as incremental ToolCallDelta fragments keyed by index; assembly
// into whole tool calls happens in pkg/tools.
package types
