package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cerebro-ai/cerebro/pkg/cli"
	"cerebro-ai/cerebro/pkg/config"
	"cerebro-ai/cerebro/pkg/memory"
	"cerebro-ai/cerebro/pkg/memory/longterm"
	"cerebro-ai/cerebro/pkg/memory/persist"
	"cerebro-ai/cerebro/pkg/memory/session"
	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/providers/openai"
	"cerebro-ai/cerebro/pkg/server"
	"cerebro-ai/cerebro/pkg/telemetry/health"
	"cerebro-ai/cerebro/pkg/telemetry/logging"
	"cerebro-ai/cerebro/pkg/telemetry/metrics"
	"cerebro-ai/cerebro/pkg/tools"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Cerebro proxy server",
	Long: `Start the Cerebro proxy server with the specified configuration.

The server listens on the configured address, terminates the
chat-completions protocol per tenant, and relays requests to the
configured upstream provider.

Examples:
  # Start with default config
  cerebro run

  # Start with custom config
  cerebro run --config /etc/cerebro/config.yaml

  # Override listen address
  cerebro run --listen 0.0.0.0:8080

  # Validate config without starting server
  cerebro run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Cerebro v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()
	checker := health.New(2 * time.Second)

	// Upstream and summarizer providers
	slog.Info("initializing upstream provider", "base_url", cfg.Upstream.BaseURL)
	upstream := openai.NewClient(providers.ProviderConfig{
		Name:         "upstream",
		BaseURL:      cfg.Upstream.BaseURL,
		APIKey:       cfg.Upstream.APIKey,
		Timeout:      cfg.Upstream.Timeout,
		MaxRetries:   cfg.Upstream.MaxRetries,
		RetryBackoff: cfg.Upstream.RetryBackoff,
	})
	summarizerClient := openai.NewClient(providers.ProviderConfig{
		Name:         "summarizer",
		BaseURL:      cfg.Summarizer.BaseURL,
		APIKey:       cfg.Summarizer.APIKey,
		Timeout:      cfg.Summarizer.Timeout,
		MaxRetries:   cfg.Summarizer.MaxRetries,
		RetryBackoff: cfg.Summarizer.RetryBackoff,
	})

	// Tool registry with optional manifest hot reload
	registry := tools.NewRegistry()
	if cfg.Tools.ManifestPath != "" {
		if err := tools.LoadManifest(cfg.Tools.ManifestPath, registry); err != nil {
			return cli.NewConfigError("tools.manifest_path", fmt.Sprintf("failed to load manifest: %v", err))
		}
		watcher := tools.NewManifestWatcher(cfg.Tools.ManifestPath, registry)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Warn("manifest watcher stopped", "error", err)
			}
		}()
		fmt.Printf("✓ Tool manifest loaded: %s\n", cfg.Tools.ManifestPath)
	}

	executor := tools.NewExecutor(registry, nil, tools.ExecutorConfig{
		Concurrency:     cfg.Tools.Concurrency,
		EndpointTimeout: cfg.Tools.EndpointTimeout,
		Observer:        collector.RecordToolExecution,
	})

	// Long-term vector memory
	var longTerm memory.LongTerm
	if cfg.LongTerm.Enabled {
		slog.Info("initializing long-term memory", "data_dir", cfg.LongTerm.DataDir)
		store, err := longterm.New(longterm.Config{
			DataDir:          cfg.LongTerm.DataDir,
			EmbeddingBaseURL: cfg.LongTerm.EmbeddingBaseURL,
			EmbeddingAPIKey:  cfg.LongTerm.EmbeddingAPIKey,
			EmbeddingModel:   cfg.LongTerm.EmbeddingModel,
		})
		if err != nil {
			return fmt.Errorf("failed to open long-term memory: %w", err)
		}
		longTerm = store
		fmt.Println("✓ Long-term memory initialized")
	}

	// Session archiving
	var onEnd session.EndFunc
	if cfg.Persist.Enabled {
		slog.Info("initializing session archive", "path", cfg.Persist.Path)
		archive, err := persist.NewArchive(persist.ArchiveConfig{
			Path:      cfg.Persist.Path,
			Retention: time.Duration(cfg.Persist.RetentionHours) * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("failed to open session archive: %w", err)
		}
		defer archive.Close()

		recorder := persist.NewRecorder(archive, persist.RecorderConfig{
			Buffer: cfg.Persist.Buffer,
		})
		defer recorder.Close()
		onEnd = recorder.Enqueue

		stopRetention, err := persist.StartRetention(archive, cfg.Persist.RetentionSchedule)
		if err != nil {
			return fmt.Errorf("failed to start archive retention: %w", err)
		}
		defer stopRetention()

		checker.RegisterCheck("archive", func(ctx context.Context) error {
			_, err := archive.Count(ctx)
			return err
		})
		fmt.Println("✓ Session archive initialized")
	}

	// Session memory
	summarizer := session.NewModelSummarizer(summarizerClient, cfg.Summarizer.Model)
	sessions := session.NewManager(session.Config{
		MaxRecent:        cfg.Session.MaxRecent,
		SummarizeAfter:   cfg.Session.SummarizeAfter,
		SummarizeBatch:   cfg.Session.SummarizeBatch,
		HardCeiling:      cfg.Session.HardCeiling,
		TTL:              time.Duration(cfg.Session.TTLHours) * time.Hour,
		MaxAge:           time.Duration(cfg.Session.MaxAgeHours) * time.Hour,
		MaxSizeBytes:     int64(cfg.Session.MaxSizeMB) << 20,
		EvictionSchedule: cfg.Session.EvictionSchedule,
		OnEviction:       collector.RecordEviction,
		OnSummarization:  collector.RecordSummarization,
	}, summarizer, onEnd)

	stopSweep, err := sessions.Start()
	if err != nil {
		return fmt.Errorf("failed to start session eviction sweep: %w", err)
	}
	defer stopSweep()

	merger := memory.NewMerger(longTerm, sessions, memory.MergerConfig{})

	// HTTP server
	slog.Info("creating HTTP server")
	srv := server.NewServer(cfg, server.Deps{
		Upstream:  upstream,
		Registry:  registry,
		Executor:  executor,
		Sessions:  sessions,
		Merger:    merger,
		LongTerm:  longTerm,
		Metrics:   collector,
		Health:    checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	})

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server",
			"address", cfg.Server.ListenAddress,
			"tls_enabled", cfg.Server.TLS.Enabled,
		)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}
