// Package config defines the proxy's YAML configuration: the HTTP
// server, upstream and summarizer providers, streaming behavior, tool
// execution, session memory, long-term memory, persistence, and
// telemetry. Loading applies defaults, then optional CEREBRO_-prefixed
// environment overrides, then validation.
package config
