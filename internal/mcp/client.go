package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/conduitrun/conduit/internal/observability"
)

// Client speaks the MCP protocol to a single server over a Transport. It
// caches the tool list returned by the last RefreshTools call.
type Client struct {
	config    *ServerConfig
	transport Transport
	tracer    *observability.Tracer
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []Tool
	serverInfo ServerInfo
	initOK     bool
}

// NewClient creates a client for the given server. Connect must be called
// before any other method.
func NewClient(cfg *ServerConfig, tracer *observability.Tracer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewStdioTransport(cfg),
		tracer:    tracer,
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect starts the server subprocess, performs the initialize handshake,
// sends notifications/initialized, and refreshes the tool list.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := c.tracer.TraceMCPCall(ctx, c.config.ID, "initialize")
	defer span.End()

	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "conduit", "version": "0.1.0"},
	})
	if err != nil {
		c.transport.Close()
		c.tracer.RecordError(span, err)
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return &InvalidResponseError{ServerID: c.config.ID, Reason: err.Error()}
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.initOK = true
	c.mu.Unlock()

	span.SetAttributes(attribute.String("mcp.server_name", initResult.ServerInfo.Name))
	c.logger.Info("connected to MCP server", "name", initResult.ServerInfo.Name, "version", initResult.ServerInfo.Version)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	return c.RefreshTools(ctx)
}

// Close terminates the server subprocess.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ID returns the server identifier this client was configured with.
func (c *Client) ID() string { return c.config.ID }

// Connected reports whether the server subprocess is currently running.
func (c *Client) Connected() bool { return c.transport.Connected() }

// RefreshTools re-fetches and caches the server's tool list.
func (c *Client) RefreshTools(ctx context.Context) error {
	if !c.checkInitialized() {
		return &NotInitializedError{ServerID: c.config.ID}
	}

	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}

	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return &InvalidResponseError{ServerID: c.config.ID, Reason: err.Error()}
	}

	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	c.logger.Debug("refreshed tools", "count", len(resp.Tools))
	return nil
}

func (c *Client) checkInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initOK
}

// Tools returns the cached tool list from the last RefreshTools call.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool invokes a tool on the server via tools/call.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	if !c.checkInitialized() {
		return nil, &NotInitializedError{ServerID: c.config.ID}
	}

	ctx, span := c.tracer.TraceMCPCall(ctx, c.config.ID, "tools/call")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.tool_name", name))

	result, err := c.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		c.tracer.RecordError(span, err)
		return nil, err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, &InvalidResponseError{ServerID: c.config.ID, Reason: err.Error()}
	}
	return &callResult, nil
}
