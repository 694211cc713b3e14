package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// Provider defaults
	DefaultProviderTimeout      = 120 * time.Second
	DefaultProviderMaxRetries   = 3
	DefaultProviderRetryBackoff = 500 * time.Millisecond

	// Stream defaults
	DefaultMaxIterations     = 5
	DefaultKeepAliveInterval = 15 * time.Second
	DefaultFullToolRounds    = 2
	DefaultDecayedToolLimit  = 3

	// Tools defaults
	DefaultToolConcurrency     = 4
	DefaultToolEndpointTimeout = 30 * time.Second

	// Session defaults
	DefaultSessionMaxRecent        = 50
	DefaultSessionSummarizeAfter   = 30
	DefaultSessionSummarizeBatch   = 20
	DefaultSessionHardCeiling      = 200
	DefaultSessionTTLHours         = 24
	DefaultSessionMaxAgeHours      = 168
	DefaultSessionMaxSizeMB        = 5
	DefaultSessionEvictionSchedule = "@every 5m"

	// Long-term memory defaults
	DefaultLongTermDataDir        = "data"
	DefaultLongTermEmbeddingModel = "text-embedding-3-small"

	// Persistence defaults
	DefaultPersistPath              = "data/sessions.db"
	DefaultPersistRetentionHours    = 720
	DefaultPersistRetentionSchedule = "@hourly"
	DefaultPersistBuffer            = 256

	// Upload defaults
	DefaultMaxUploadMB = 20

	// Telemetry defaults
	DefaultLoggingLevel = "info"
	DefaultLoggingFormat = "json"
	DefaultMetricsPath   = "/metrics"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// CORS defaults
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Provider defaults
	applyProviderDefaults(&cfg.Upstream)
	applyProviderDefaults(&cfg.Summarizer)

	// The summarizer falls back to the upstream provider when it has
	// no endpoint of its own.
	if cfg.Summarizer.BaseURL == "" {
		cfg.Summarizer.BaseURL = cfg.Upstream.BaseURL
		if cfg.Summarizer.APIKey == "" {
			cfg.Summarizer.APIKey = cfg.Upstream.APIKey
		}
		if cfg.Summarizer.Model == "" {
			cfg.Summarizer.Model = cfg.Upstream.Model
		}
	}

	// Stream defaults
	if cfg.Stream.MaxIterations == 0 {
		cfg.Stream.MaxIterations = DefaultMaxIterations
	}
	if cfg.Stream.KeepAliveInterval == 0 {
		cfg.Stream.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.Stream.FullToolRounds == 0 {
		cfg.Stream.FullToolRounds = DefaultFullToolRounds
	}
	if cfg.Stream.DecayedToolLimit == 0 {
		cfg.Stream.DecayedToolLimit = DefaultDecayedToolLimit
	}

	// Tools defaults
	if cfg.Tools.Concurrency == 0 {
		cfg.Tools.Concurrency = DefaultToolConcurrency
	}
	if cfg.Tools.EndpointTimeout == 0 {
		cfg.Tools.EndpointTimeout = DefaultToolEndpointTimeout
	}

	// Session defaults
	if cfg.Session.MaxRecent == 0 {
		cfg.Session.MaxRecent = DefaultSessionMaxRecent
	}
	if cfg.Session.SummarizeAfter == 0 {
		cfg.Session.SummarizeAfter = DefaultSessionSummarizeAfter
	}
	if cfg.Session.SummarizeBatch == 0 {
		cfg.Session.SummarizeBatch = DefaultSessionSummarizeBatch
	}
	if cfg.Session.HardCeiling == 0 {
		cfg.Session.HardCeiling = DefaultSessionHardCeiling
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = DefaultSessionTTLHours
	}
	if cfg.Session.MaxAgeHours == 0 {
		cfg.Session.MaxAgeHours = DefaultSessionMaxAgeHours
	}
	if cfg.Session.MaxSizeMB == 0 {
		cfg.Session.MaxSizeMB = DefaultSessionMaxSizeMB
	}
	if cfg.Session.EvictionSchedule == "" {
		cfg.Session.EvictionSchedule = DefaultSessionEvictionSchedule
	}

	// Long-term memory defaults
	if cfg.LongTerm.DataDir == "" {
		cfg.LongTerm.DataDir = DefaultLongTermDataDir
	}
	if cfg.LongTerm.EmbeddingBaseURL == "" {
		cfg.LongTerm.EmbeddingBaseURL = cfg.Upstream.BaseURL
	}
	if cfg.LongTerm.EmbeddingAPIKey == "" {
		cfg.LongTerm.EmbeddingAPIKey = cfg.Upstream.APIKey
	}
	if cfg.LongTerm.EmbeddingModel == "" {
		cfg.LongTerm.EmbeddingModel = DefaultLongTermEmbeddingModel
	}

	// Persistence defaults
	if cfg.Persist.Path == "" {
		cfg.Persist.Path = DefaultPersistPath
	}
	if cfg.Persist.RetentionHours == 0 {
		cfg.Persist.RetentionHours = DefaultPersistRetentionHours
	}
	if cfg.Persist.RetentionSchedule == "" {
		cfg.Persist.RetentionSchedule = DefaultPersistRetentionSchedule
	}
	if cfg.Persist.Buffer == 0 {
		cfg.Persist.Buffer = DefaultPersistBuffer
	}

	// Upload defaults
	if cfg.Uploads.MaxUploadMB == 0 {
		cfg.Uploads.MaxUploadMB = DefaultMaxUploadMB
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultProviderMaxRetries
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = DefaultProviderRetryBackoff
	}
}
