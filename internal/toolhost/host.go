// Package toolhost adapts one or more MCP servers into a single uniform
// tool surface: a flat list of ToolSpecs plus an Execute call that validates
// input against the tool's JSON Schema before dispatching to the server
// that owns it.
package toolhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/conduitrun/conduit/internal/mcp"
	"github.com/conduitrun/conduit/internal/observability"
	"github.com/conduitrun/conduit/pkg/runtime"
)

// Host is the tool-calling surface the session orchestrator drives: specs
// for building the model's tool list, and execute for running a call the
// model requested.
type Host interface {
	Specs() []runtime.ToolSpec
	Execute(ctx context.Context, call runtime.ToolCall) runtime.ToolResult
}

// EmptyHost is a Host with no tools, used when no MCP servers are configured.
type EmptyHost struct{}

func (EmptyHost) Specs() []runtime.ToolSpec { return nil }

func (EmptyHost) Execute(_ context.Context, call runtime.ToolCall) runtime.ToolResult {
	return runtime.NewToolFailure(call.ID, runtime.NewNotFoundError(call.Name))
}

// MCPHost is a Host backed by a mcp.Manager. Tool input is validated
// against the tool's advertised JSON Schema before the call is forwarded;
// invalid input never reaches the server.
type MCPHost struct {
	manager *mcp.Manager
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger

	schemas map[string]*jsonschema.Schema
}

// NewMCPHost builds a Host over an already-connected Manager, compiling the
// JSON Schema for every tool it currently advertises.
func NewMCPHost(manager *mcp.Manager, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) (*MCPHost, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &MCPHost{manager: manager, metrics: metrics, tracer: tracer, logger: logger, schemas: make(map[string]*jsonschema.Schema)}
	if err := h.compileSchemas(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *MCPHost) compileSchemas() error {
	compiler := jsonschema.NewCompiler()
	for _, t := range h.toolsByFirstRegistration() {
		if len(t.InputSchema) == 0 {
			continue
		}
		resourceURL := "schema://" + t.Name
		if err := compiler.AddResource(resourceURL, bytes.NewReader(t.InputSchema)); err != nil {
			return fmt.Errorf("add schema resource for tool %q: %w", t.Name, err)
		}
		schema, err := compiler.Compile(resourceURL)
		if err != nil {
			return fmt.Errorf("compile schema for tool %q: %w", t.Name, err)
		}
		h.schemas[t.Name] = schema
	}
	return nil
}

func (h *MCPHost) toolsByFirstRegistration() []mcp.Tool {
	return h.manager.AllTools()
}

// Specs returns a ToolSpec for every tool across every managed server,
// first-registered-wins on name collision.
func (h *MCPHost) Specs() []runtime.ToolSpec {
	tools := h.toolsByFirstRegistration()
	specs := make([]runtime.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, runtime.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return specs
}

// Execute validates the call's input against the tool's schema, then
// dispatches it to whichever server first registered that tool name.
func (h *MCPHost) Execute(ctx context.Context, call runtime.ToolCall) runtime.ToolResult {
	start := time.Now()
	ctx, span := h.tracer.TraceToolExecution(ctx, call.Name)
	defer span.End()

	client, _, ok := h.manager.ClientForTool(call.Name)
	if !ok {
		h.metrics.RecordToolExecution(call.Name, "error", time.Since(start).Seconds())
		return runtime.NewToolFailure(call.ID, runtime.NewNotFoundError(call.Name))
	}

	if schema, ok := h.schemas[call.Name]; ok {
		var input any
		if err := json.Unmarshal(call.Input, &input); err != nil {
			h.metrics.RecordToolExecution(call.Name, "error", time.Since(start).Seconds())
			return runtime.NewToolFailure(call.ID, runtime.NewInvalidInputError(err.Error()))
		}
		if err := schema.Validate(input); err != nil {
			h.metrics.RecordToolExecution(call.Name, "error", time.Since(start).Seconds())
			return runtime.NewToolFailure(call.ID, runtime.NewInvalidInputError(err.Error()))
		}
	}

	result, err := client.CallTool(ctx, call.Name, call.Input)
	duration := time.Since(start).Seconds()
	if err != nil {
		h.tracer.RecordError(span, err)
		h.metrics.RecordToolExecution(call.Name, "error", duration)
		if te, ok := err.(*mcp.TimeoutError); ok {
			return runtime.NewToolFailure(call.ID, runtime.NewTimeoutError(durationMS(te.Timeout)))
		}
		return runtime.NewToolFailure(call.ID, runtime.NewExecutionError(err.Error()))
	}

	if result.IsError {
		h.metrics.RecordToolExecution(call.Name, "error", duration)
		return runtime.NewToolFailure(call.ID, runtime.NewExecutionError(resultText(result)))
	}

	h.metrics.RecordToolExecution(call.Name, "success", duration)
	output, marshalErr := json.Marshal(resultText(result))
	if marshalErr != nil {
		return runtime.NewToolFailure(call.ID, runtime.NewExecutionError(marshalErr.Error()))
	}
	return runtime.NewToolSuccess(call.ID, output)
}

func resultText(result *mcp.ToolCallResult) string {
	var out string
	for _, c := range result.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

func durationMS(s string) int64 {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d.Milliseconds()
}
