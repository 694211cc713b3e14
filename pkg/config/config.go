package config

import "time"

// Config is the root configuration for the proxy.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Upstream is the main chat completion provider.
	Upstream ProviderConfig `yaml:"upstream"`

	// Summarizer is the provider used for memory compression calls.
	// When its base_url is empty the upstream provider is reused.
	Summarizer ProviderConfig `yaml:"summarizer"`

	// Stream controls the streaming state machine.
	Stream StreamConfig `yaml:"stream"`

	// Tools controls tool registration and execution.
	Tools ToolsConfig `yaml:"tools"`

	// Session controls the tiered ephemeral session store.
	Session SessionConfig `yaml:"session"`

	// LongTerm controls the durable tenant knowledge store.
	LongTerm LongTermConfig `yaml:"longterm"`

	// Persist controls background archiving of ended sessions.
	Persist PersistConfig `yaml:"persist"`

	// Uploads controls inline file ingestion.
	Uploads UploadsConfig `yaml:"uploads"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is "host:port". Default: "127.0.0.1:8080".
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading the request including the body.
	// Default: 30s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Streaming responses are
	// exempt; keep it large enough for slow non-streaming turns.
	// Default: 10m.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle connections. Default: 120s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request header size. Default: 1MB.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes caps request body size. Default: 10MB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS contains optional TLS settings.
	TLS TLSConfig `yaml:"tls"`

	// CORS contains cross-origin settings.
	CORS CORSConfig `yaml:"cors"`
}

// TLSConfig contains TLS settings for the listener.
type TLSConfig struct {
	// Enabled turns TLS on. Default: false.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate path.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM key path.
	KeyFile string `yaml:"key_file"`
}

// CORSConfig contains cross-origin resource sharing settings.
type CORSConfig struct {
	// Enabled turns CORS handling on. Default: true.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. Default: ["*"].
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"].
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"].
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache age in seconds. Default: 3600.
	MaxAge int `yaml:"max_age"`
}

// ProviderConfig contains one upstream provider endpoint.
type ProviderConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token. Supports "${ENV_VAR}" expansion.
	APIKey string `yaml:"api_key"`

	// Model is the default model when the request omits one.
	Model string `yaml:"model"`

	// Timeout bounds one HTTP request. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	// Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base exponential backoff delay. Default: 500ms.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StreamConfig controls the streaming state machine.
type StreamConfig struct {
	// MaxIterations caps tool-execution rounds per request. Default: 5.
	MaxIterations int `yaml:"max_iterations"`

	// KeepAliveInterval is the maximum silent SSE gap. Default: 15s.
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`

	// FullToolRounds is how many rounds get the full tool set.
	// Default: 2.
	FullToolRounds int `yaml:"full_tool_rounds"`

	// DecayedToolLimit caps tools offered in decayed rounds. Default: 3.
	DecayedToolLimit int `yaml:"decayed_tool_limit"`
}

// ToolsConfig controls tool registration and execution.
type ToolsConfig struct {
	// ManifestPath is an optional JSON manifest of pre-registered
	// tenant tools, watched for changes when set.
	ManifestPath string `yaml:"manifest_path"`

	// Concurrency caps parallel tool executions per round. Default: 4.
	Concurrency int `yaml:"concurrency"`

	// EndpointTimeout bounds one remote tool dispatch. Default: 30s.
	EndpointTimeout time.Duration `yaml:"endpoint_timeout"`
}

// SessionConfig controls the tiered session store.
type SessionConfig struct {
	// MaxRecent is the soft cap on raw messages. Default: 50.
	MaxRecent int `yaml:"max_recent"`

	// SummarizeAfter triggers summarization. Default: 30.
	SummarizeAfter int `yaml:"summarize_after"`

	// SummarizeBatch is the compressed block size. Default: 20.
	SummarizeBatch int `yaml:"summarize_batch"`

	// HardCeiling is the absolute message-count limit. Default: 200.
	HardCeiling int `yaml:"hard_ceiling"`

	// TTLHours evicts idle sessions. Default: 24.
	TTLHours int `yaml:"ttl_hours"`

	// MaxAgeHours evicts sessions by absolute age. Default: 168.
	MaxAgeHours int `yaml:"max_age_hours"`

	// MaxSizeMB caps serialized memory per session. Default: 5.
	MaxSizeMB int `yaml:"max_size_mb"`

	// EvictionSchedule is the sweep cron spec. Default: "@every 5m".
	EvictionSchedule string `yaml:"eviction_schedule"`
}

// LongTermConfig controls the durable knowledge store.
type LongTermConfig struct {
	// Enabled turns long-term memory on. Default: true.
	Enabled bool `yaml:"enabled"`

	// DataDir is where vector collections persist. Default: "data".
	DataDir string `yaml:"data_dir"`

	// EmbeddingBaseURL is an OpenAI-compatible embeddings endpoint.
	// Defaults to the upstream provider's base_url.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// EmbeddingAPIKey authenticates embedding calls. Defaults to the
	// upstream api_key.
	EmbeddingAPIKey string `yaml:"embedding_api_key"`

	// EmbeddingModel is the embedding model name.
	// Default: "text-embedding-3-small".
	EmbeddingModel string `yaml:"embedding_model"`
}

// PersistConfig controls background session archiving.
type PersistConfig struct {
	// Enabled turns archiving on. Default: true.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite archive file. Default: "data/sessions.db".
	Path string `yaml:"path"`

	// RetentionHours is how long archived sessions are kept.
	// Default: 720.
	RetentionHours int `yaml:"retention_hours"`

	// RetentionSchedule is the prune cron spec. Default: "@hourly".
	RetentionSchedule string `yaml:"retention_schedule"`

	// Buffer is the async write channel capacity. Default: 256.
	Buffer int `yaml:"buffer"`
}

// UploadsConfig controls inline file ingestion.
type UploadsConfig struct {
	// MaxUploadMB caps one decoded inline file. Default: 20.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error". Default: "info".
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json".
	Format string `yaml:"format"`

	// AddSource includes source positions in log records. Default: false.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics. Default: true.
	Enabled bool `yaml:"enabled"`

	// Path is the scrape path. Default: "/metrics".
	Path string `yaml:"path"`
}
