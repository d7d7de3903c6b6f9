package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized registry of the runtime's Prometheus instruments.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordToolExecution("search", "success", time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures backend call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts backend calls by provider, model, and status.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks cumulative token usage.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by tool name and outcome.
	// Labels: tool_name, status (success|error|denied)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// MCPRequestDuration measures MCP round-trip latency in seconds.
	// Labels: server, method
	MCPRequestDuration *prometheus.HistogramVec

	// MCPRequestCounter counts MCP round trips by server, method, and status.
	// Labels: server, method, status (ok|timeout|error)
	MCPRequestCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error kind.
	// Labels: component, error_kind
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of sessions currently mid-turn.
	ActiveSessions prometheus.Gauge

	// TurnDuration measures the wall-clock duration of one user turn.
	TurnDuration prometheus.Histogram

	// ToolStepsPerTurn records how many tool-calling steps a turn took.
	ToolStepsPerTurn prometheus.Histogram
}

// NewMetrics creates and registers every instrument with Prometheus's default
// registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_llm_request_duration_seconds",
				Help:    "Duration of model backend requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_llm_requests_total",
				Help: "Total model backend requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_llm_tokens_total",
				Help: "Total tokens used by provider, model, and direction",
			},
			[]string{"provider", "model", "type"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_tool_executions_total",
				Help: "Total tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		MCPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_mcp_request_duration_seconds",
				Help:    "Duration of MCP JSON-RPC round trips in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"server", "method"},
		),
		MCPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_mcp_requests_total",
				Help: "Total MCP JSON-RPC requests by server, method, and status",
			},
			[]string{"server", "method", "status"},
		),
		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_errors_total",
				Help: "Total errors by component and error kind",
			},
			[]string{"component", "error_kind"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_active_sessions",
				Help: "Sessions currently executing a turn",
			},
		),
		TurnDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_turn_duration_seconds",
				Help:    "Duration of a full user turn, including all tool steps",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		ToolStepsPerTurn: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_steps_per_turn",
				Help:    "Number of model-then-tools steps a turn took",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
			},
		),
	}
}

// RecordLLMRequest records metrics for one model backend call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records metrics for one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordMCPRequest records metrics for one MCP JSON-RPC round trip.
func (m *Metrics) RecordMCPRequest(server, method, status string, durationSeconds float64) {
	m.MCPRequestCounter.WithLabelValues(server, method, status).Inc()
	m.MCPRequestDuration.WithLabelValues(server, method).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error kind.
func (m *Metrics) RecordError(component, errorKind string) {
	m.ErrorCounter.WithLabelValues(component, errorKind).Inc()
}

// TurnStarted increments the active-sessions gauge.
func (m *Metrics) TurnStarted() {
	m.ActiveSessions.Inc()
}

// TurnEnded decrements the active-sessions gauge and records turn duration and step count.
func (m *Metrics) TurnEnded(durationSeconds float64, toolSteps int) {
	m.ActiveSessions.Dec()
	m.TurnDuration.Observe(durationSeconds)
	m.ToolStepsPerTurn.Observe(float64(toolSteps))
}
