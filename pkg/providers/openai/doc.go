// Package openai implements the Provider interface against any
// OpenAI-compatible chat completions endpoint. It handles both
// streaming and non-streaming calls and surfaces tool-call fragments
// from SSE streams without reassembling them; accumulation is the
// stream controller's job.
package openai
