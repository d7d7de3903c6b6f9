// Package observability provides the runtime's three pillars of observability:
// Prometheus metrics, structured slog-based logging with secret redaction, and
// OpenTelemetry tracing.
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "conduit"})
//	defer shutdown(context.Background())
//
//	ctx = observability.AddSessionID(ctx, sessionID.String())
//	ctx, span := tracer.TraceToolExecution(ctx, toolName)
//	defer span.End()
//	metrics.RecordToolExecution(toolName, "success", time.Since(start).Seconds())
//	logger.Info(ctx, "tool executed", "tool_name", toolName)
package observability
