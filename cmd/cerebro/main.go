// Cerebro is a multi-tenant proxy for OpenAI-compatible chat APIs.
//
// It terminates the chat-completions protocol on behalf of thin clients,
// providing:
//   - Streaming SSE relay with keep-alives and recursive tool execution
//   - Tenant-registered tool endpoints with manifest hot reload
//   - Tiered ephemeral session memory with model-driven summarization
//   - Long-term vector memory with per-tenant collections
//   - Durable archiving of ended sessions
//
// Usage:
//
//	# Start server with default configuration
//	cerebro run
//
//	# Start with custom configuration file
//	cerebro run --config /path/to/config.yaml
//
//	# Show version information
//	cerebro version
//
//	# Validate a configuration file
//	cerebro validate --config /path/to/config.yaml
package main

func main() {
	Execute()
}
