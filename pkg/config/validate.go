package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProvider("upstream", &cfg.Upstream)...)
	errs = append(errs, validateProvider("summarizer", &cfg.Summarizer)...)
	errs = append(errs, validateStream(&cfg.Stream)...)
	errs = append(errs, validateTools(&cfg.Tools)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: must be host:port", cfg.ListenAddress),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.cert_file",
				Message: "cert file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
	}

	return errs
}

// validateProvider validates one provider endpoint configuration.
func validateProvider(name string, cfg *ProviderConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   name + ".base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   name + ".base_url",
			Message: fmt.Sprintf("invalid base URL %q", cfg.BaseURL),
		})
	}

	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   name + ".max_retries",
			Message: "max retries must not be negative",
		})
	}

	return errs
}

// validateStream validates streaming state machine configuration.
func validateStream(cfg *StreamConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxIterations < 1 {
		errs = append(errs, FieldError{
			Field:   "stream.max_iterations",
			Message: "max iterations must be at least 1",
		})
	}
	if cfg.KeepAliveInterval < time.Second {
		errs = append(errs, FieldError{
			Field:   "stream.keepalive_interval",
			Message: "keepalive interval must be at least 1s",
		})
	}
	if cfg.DecayedToolLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "stream.decayed_tool_limit",
			Message: "decayed tool limit must not be negative",
		})
	}

	return errs
}

// validateTools validates tool execution configuration.
func validateTools(cfg *ToolsConfig) []FieldError {
	var errs []FieldError

	if cfg.Concurrency < 1 {
		errs = append(errs, FieldError{
			Field:   "tools.concurrency",
			Message: "concurrency must be at least 1",
		})
	}

	return errs
}

// validateSession validates session memory configuration.
func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	if cfg.SummarizeBatch > cfg.SummarizeAfter {
		errs = append(errs, FieldError{
			Field:   "session.summarize_batch",
			Message: "summarize batch must not exceed summarize_after",
		})
	}
	if cfg.SummarizeAfter > cfg.MaxRecent {
		errs = append(errs, FieldError{
			Field:   "session.summarize_after",
			Message: "summarize_after must not exceed max_recent",
		})
	}
	if cfg.HardCeiling < cfg.MaxRecent {
		errs = append(errs, FieldError{
			Field:   "session.hard_ceiling",
			Message: "hard ceiling must not be below max_recent",
		})
	}
	if cfg.TTLHours < 1 {
		errs = append(errs, FieldError{
			Field:   "session.ttl_hours",
			Message: "TTL must be at least 1 hour",
		})
	}
	if cfg.MaxAgeHours < cfg.TTLHours {
		errs = append(errs, FieldError{
			Field:   "session.max_age_hours",
			Message: "max age must not be below ttl_hours",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be debug, info, warn, or error", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be json or text", cfg.Logging.Format),
		})
	}

	return errs
}
