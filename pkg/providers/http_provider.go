package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBodyBytes bounds how much of an upstream error body is kept
// for the error message.
const maxErrorBodyBytes = 2048

// HTTPProvider is the shared base for HTTP-backed provider adapters. It
// carries the pooled client and the retry loop; concrete adapters embed
// it and implement the Provider interface.
type HTTPProvider struct {
	config ProviderConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPProvider creates the shared HTTP base with connection pooling.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	config.ApplyDefaults()

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConns,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		logger: slog.Default().With("component", "providers", "provider", config.Name),
	}
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Config returns the provider configuration.
func (p *HTTPProvider) Config() ProviderConfig {
	return p.config
}

// Close releases pooled connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// DoRequest performs an HTTP request with bounded retry and exponential
// backoff. 5xx responses and transport errors are retried; 4xx responses
// and context cancellation are not. On success the caller owns the
// response body.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.config.RetryBackoff << (attempt - 1)
			p.logger.Debug("retrying upstream request",
				"attempt", attempt,
				"max_retries", p.config.MaxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if p.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout}
			}
			lastErr = err
			p.logger.Warn("upstream request failed, will retry",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		upErr := &UpstreamError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
		}

		// Client-side errors are final.
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, upErr
		}

		lastErr = upErr
		p.logger.Warn("upstream returned retryable status",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, fmt.Errorf("upstream %s: retries exhausted: %w", p.config.Name, lastErr)
}
