// Package proxy provides the client-facing HTTP plumbing shared by the
// proxy handlers: request parsing, OpenAI-compatible response and error
// formatting, and the Server-Sent-Events stream writer.
//
// # SSE wire format
//
// Streaming responses are emitted as SSE data frames:
//
//	data: {"id":"chatcmpl-...","object":"chat.completion.chunk",...}
//
// Keep-alive signals use the SSE comment form and carry no payload:
//
//	: keep-alive
//
// Stream end is a literal sentinel after the terminal chunk pair:
//
//	data: [DONE]
//
// StreamWriter serializes chunk and keep-alive writes so that frames from
// the controller and the keep-alive scheduler never interleave.
package proxy
