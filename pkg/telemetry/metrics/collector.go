package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cerebro"

// Collector owns the Prometheus registry and all proxy metrics.
//
// Metrics:
//   - cerebro_requests_total: Completed requests by tenant, mode, status
//   - cerebro_request_duration_seconds: End-to-end request duration
//   - cerebro_tokens_total: Token usage by tenant and type
//   - cerebro_stream_iterations: Tool rounds consumed per streaming request
//   - cerebro_keepalives_total: SSE keep-alive comments emitted
//   - cerebro_tool_executions_total: Tool executions by tenant, tool, status
//   - cerebro_tool_duration_seconds: Tool execution duration
//   - cerebro_sessions_active: Live sessions in the ephemeral store
//   - cerebro_session_evictions_total: Sessions removed, by reason
//   - cerebro_summarizations_total: Memory compression attempts by outcome
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	streamIterations *prometheus.HistogramVec
	keepalivesTotal  prometheus.Counter

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	sessionsActive      prometheus.Gauge
	sessionEvictions    *prometheus.CounterVec
	summarizationsTotal *prometheus.CounterVec
}

// NewCollector creates the registry and registers all proxy metrics,
// plus the standard Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of chat completion requests processed",
			},
			[]string{"tenant", "mode", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end duration of chat completion requests",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"tenant", "mode"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"tenant", "type"},
		),

		streamIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_iterations",
				Help:      "Tool execution rounds consumed per request",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"tenant"},
		),

		keepalivesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keepalives_total",
				Help:      "SSE keep-alive comments emitted during silent gaps",
			},
		),

		toolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Tool executions by outcome",
			},
			[]string{"tenant", "tool", "status"},
		),

		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Duration of individual tool executions",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			},
			[]string{"tenant", "tool"},
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Live sessions held in the ephemeral store",
			},
		),

		sessionEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_evictions_total",
				Help:      "Sessions removed from the ephemeral store, by reason",
			},
			[]string{"reason"},
		),

		summarizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summarizations_total",
				Help:      "Session memory compression attempts by outcome",
			},
			[]string{"status"},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.tokensTotal,
		c.streamIterations,
		c.keepalivesTotal,
		c.toolExecutions,
		c.toolDuration,
		c.sessionsActive,
		c.sessionEvictions,
		c.summarizationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// RecordRequest records a completed chat completion request.
// Mode is "stream" or "sync"; status is "success" or "error".
func (c *Collector) RecordRequest(tenant, mode, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(tenant, mode, status).Inc()
	c.requestDuration.WithLabelValues(tenant, mode).Observe(duration.Seconds())
}

// RecordTokens records prompt and completion token usage.
func (c *Collector) RecordTokens(tenant string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(tenant, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(tenant, "completion").Add(float64(completionTokens))
	}
}

// RecordStreamIterations records the tool rounds a request consumed.
func (c *Collector) RecordStreamIterations(tenant string, iterations int) {
	c.streamIterations.WithLabelValues(tenant).Observe(float64(iterations))
}

// RecordKeepAlive counts one emitted keep-alive comment.
func (c *Collector) RecordKeepAlive() {
	c.keepalivesTotal.Inc()
}

// RecordToolExecution records one tool execution.
// Status is "success", "error", or "deferred".
func (c *Collector) RecordToolExecution(tenant, tool, status string, duration time.Duration) {
	c.toolExecutions.WithLabelValues(tenant, tool, status).Inc()
	if status != "deferred" {
		c.toolDuration.WithLabelValues(tenant, tool).Observe(duration.Seconds())
	}
}

// SetActiveSessions updates the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// RecordEviction counts one removed session.
// Reason is "explicit" or "expired".
func (c *Collector) RecordEviction(reason string) {
	c.sessionEvictions.WithLabelValues(reason).Inc()
}

// RecordSummarization counts one memory compression attempt.
// Status is "success" or "error".
func (c *Collector) RecordSummarization(status string) {
	c.summarizationsTotal.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry for test scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
