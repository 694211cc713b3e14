// Package server assembles and runs the HTTP proxy.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cerebro-ai/cerebro/pkg/config"
	"cerebro-ai/cerebro/pkg/memory"
	"cerebro-ai/cerebro/pkg/memory/session"
	"cerebro-ai/cerebro/pkg/providers"
	"cerebro-ai/cerebro/pkg/proxy"
	"cerebro-ai/cerebro/pkg/proxy/handlers"
	"cerebro-ai/cerebro/pkg/proxy/middleware"
	"cerebro-ai/cerebro/pkg/stream"
	"cerebro-ai/cerebro/pkg/telemetry/health"
	"cerebro-ai/cerebro/pkg/telemetry/metrics"
	"cerebro-ai/cerebro/pkg/tools"
)

// Deps carries the assembled components the server serves.
type Deps struct {
	Upstream  providers.Provider
	Registry  *tools.Registry
	Executor  *tools.Executor
	Sessions  *session.Manager
	Merger    *memory.Merger
	LongTerm  memory.LongTerm
	Ingestor  proxy.Ingestor
	UsageHook handlers.UsageHook
	Metrics   *metrics.Collector
	Health    *health.Checker
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP front of the proxy.
type Server struct {
	config       *config.Config
	deps         Deps
	httpServer   *http.Server
	logger       *slog.Logger
	shutdownChan chan struct{}
	requestOnce  sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server around assembled components.
func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{
		config:       cfg,
		deps:         deps,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	if s.config.Server.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting proxy server",
			"address", s.config.Server.ListenAddress,
			"tls_enabled", s.config.Server.TLS.Enabled,
		)

		var err error
		if s.config.Server.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(
				s.config.Server.TLS.CertFile,
				s.config.Server.TLS.KeyFile,
			)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("proxy server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(handlers.ChatHandlerDeps{
		Upstream:  s.deps.Upstream,
		Executor:  s.deps.Executor,
		Registry:  s.deps.Registry,
		Sessions:  s.deps.Sessions,
		Merger:    s.deps.Merger,
		LongTerm:  s.deps.LongTerm,
		Ingestor:  s.deps.Ingestor,
		Metrics:   s.deps.Metrics,
		UsageHook: s.deps.UsageHook,
		StreamConfig: stream.Config{
			MaxIterations:     s.config.Stream.MaxIterations,
			KeepAliveInterval: s.config.Stream.KeepAliveInterval,
			FullToolRounds:    s.config.Stream.FullToolRounds,
			DecayedToolLimit:  s.config.Stream.DecayedToolLimit,
		},
		DefaultModel: s.config.Upstream.Model,
		MaxUploadMB:  s.config.Uploads.MaxUploadMB,
	})
	toolsHandler := handlers.NewToolsHandler(s.deps.Registry)
	sessionHandler := handlers.NewSessionHandler(s.deps.Sessions, s.deps.Metrics)

	// Streaming completions manage their own lifetime; only management
	// routes run under the timeout middleware.
	manage := middleware.TimeoutMiddleware(s.config.Server.ReadTimeout)

	mux.Handle("/v1/{tenant}/chat/completions", chatHandler)
	mux.Handle("/v1/{tenant}/tools", manage(toolsHandler))
	mux.Handle("/v1/{tenant}/session", manage(sessionHandler))

	if s.deps.Health != nil {
		mux.Handle("/healthz", s.deps.Health.LivenessHandler())
		mux.Handle("/readyz", s.deps.Health.ReadinessHandler())
		mux.Handle("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))
	}

	if s.deps.Metrics != nil && s.config.Telemetry.Metrics.Enabled {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.BodyLimitMiddleware(s.config.Server.MaxBodyBytes)(handler)
	handler = middleware.CORSMiddleware(&s.config.Server.CORS)(handler)
	handler = middleware.LoggingMiddleware(slog.Default())(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(slog.Default())(handler)

	return handler
}

// RequestShutdown triggers a graceful stop from another goroutine.
func (s *Server) RequestShutdown() {
	s.requestOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// WaitUntilReady polls the listener until it accepts connections or the
// timeout elapses. Used by tests and the CLI's readiness gate.
func (s *Server) WaitUntilReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	scheme := "http"
	if s.config.Server.TLS.Enabled {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/healthz", scheme, s.config.Server.ListenAddress)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}
