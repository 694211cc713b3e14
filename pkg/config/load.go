package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It expands ${ENV_VAR} references in credential fields, applies default
// values, validates the configuration, and returns any errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	expandSecrets(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CEREBRO_SECTION_FIELD (e.g., CEREBRO_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// expandSecrets resolves ${ENV_VAR} references in credential fields so
// keys never need to live in the file itself.
func expandSecrets(cfg *Config) {
	cfg.Upstream.APIKey = expandEnvRef(cfg.Upstream.APIKey)
	cfg.Summarizer.APIKey = expandEnvRef(cfg.Summarizer.APIKey)
	cfg.LongTerm.EmbeddingAPIKey = expandEnvRef(cfg.LongTerm.EmbeddingAPIKey)
}

func expandEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format CEREBRO_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("CEREBRO_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("CEREBRO_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("CEREBRO_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("CEREBRO_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Upstream provider overrides
	if val := os.Getenv("CEREBRO_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("CEREBRO_UPSTREAM_API_KEY"); val != "" {
		cfg.Upstream.APIKey = val
	}
	if val := os.Getenv("CEREBRO_UPSTREAM_MODEL"); val != "" {
		cfg.Upstream.Model = val
	}
	if val := os.Getenv("CEREBRO_UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Summarizer overrides
	if val := os.Getenv("CEREBRO_SUMMARIZER_BASE_URL"); val != "" {
		cfg.Summarizer.BaseURL = val
	}
	if val := os.Getenv("CEREBRO_SUMMARIZER_API_KEY"); val != "" {
		cfg.Summarizer.APIKey = val
	}
	if val := os.Getenv("CEREBRO_SUMMARIZER_MODEL"); val != "" {
		cfg.Summarizer.Model = val
	}

	// Stream overrides
	if val := os.Getenv("CEREBRO_STREAM_MAX_ITERATIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Stream.MaxIterations = n
		}
	}
	if val := os.Getenv("CEREBRO_STREAM_KEEPALIVE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Stream.KeepAliveInterval = d
		}
	}

	// Tools overrides
	if val := os.Getenv("CEREBRO_TOOLS_MANIFEST_PATH"); val != "" {
		cfg.Tools.ManifestPath = val
	}
	if val := os.Getenv("CEREBRO_TOOLS_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Tools.Concurrency = n
		}
	}

	// Session overrides
	if val := os.Getenv("CEREBRO_SESSION_TTL_HOURS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Session.TTLHours = n
		}
	}
	if val := os.Getenv("CEREBRO_SESSION_MAX_RECENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Session.MaxRecent = n
		}
	}

	// Long-term memory overrides
	if val := os.Getenv("CEREBRO_LONGTERM_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.LongTerm.Enabled = b
		}
	}
	if val := os.Getenv("CEREBRO_LONGTERM_DATA_DIR"); val != "" {
		cfg.LongTerm.DataDir = val
	}
	if val := os.Getenv("CEREBRO_LONGTERM_EMBEDDING_API_KEY"); val != "" {
		cfg.LongTerm.EmbeddingAPIKey = val
	}

	// Persistence overrides
	if val := os.Getenv("CEREBRO_PERSIST_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Persist.Enabled = b
		}
	}
	if val := os.Getenv("CEREBRO_PERSIST_PATH"); val != "" {
		cfg.Persist.Path = val
	}

	// Telemetry overrides
	if val := os.Getenv("CEREBRO_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CEREBRO_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CEREBRO_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}
