package mcp

import "context"

// Transport is the wire-level connection to one MCP server subprocess.
// Client speaks JSON-RPC semantics on top of it; Transport owns only framing,
// process lifecycle, and request/response correlation.
type Transport interface {
	// Connect starts the subprocess and completes the stdio handshake.
	Connect(ctx context.Context) error

	// Close terminates the subprocess and releases its resources.
	Close() error

	// Call sends a request and blocks until the matching response arrives,
	// the context is canceled, or the per-request timeout elapses.
	Call(ctx context.Context, method string, params any) ([]byte, error)

	// Notify sends a notification; no response is expected or awaited.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the subprocess is currently running.
	Connected() bool
}
