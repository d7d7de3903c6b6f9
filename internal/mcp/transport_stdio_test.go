package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// fixtureScript is a tiny shell "MCP server" that answers initialize and
// tools/list with canned JSON-RPC responses, one per stdin line.
const fixtureScript = `
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fixture","version":"1.0"}}}'
      ;;
    *'"method":"tools/list"'*)
      echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo","description":"echoes input","inputSchema":{"type":"object"}}]}}'
      ;;
  esac
done
`

func TestStdioTransport_CallRoundTrip(t *testing.T) {
	cfg := &ServerConfig{ID: "fixture", Command: "/bin/sh", Args: []string{"-c", fixtureScript}, Timeout: 2 * time.Second}
	transport := NewStdioTransport(cfg)

	ctx := context.Background()
	if err := transport.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer transport.Close()

	result, err := transport.Call(ctx, "initialize", map[string]any{"protocolVersion": "2024-11-05"})
	if err != nil {
		t.Fatalf("call initialize: %v", err)
	}
	if len(result) == 0 {
		t.Fatal("expected a non-empty initialize result")
	}

	result, err = transport.Call(ctx, "tools/list", nil)
	if err != nil {
		t.Fatalf("call tools/list: %v", err)
	}
	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		t.Fatalf("unmarshal tools/list result: %v", err)
	}
	if len(resp.Tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(resp.Tools))
	}
}

func TestStdioTransport_TimeoutOnSilentServer(t *testing.T) {
	cfg := &ServerConfig{ID: "silent", Command: "/bin/sh", Args: []string{"-c", "cat >/dev/null"}, Timeout: 100 * time.Millisecond}
	transport := NewStdioTransport(cfg)

	ctx := context.Background()
	if err := transport.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(ctx, "initialize", nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("got error %T, want *TimeoutError", err)
	}
}

func TestStdioTransport_ServerExitedFailsPendingCalls(t *testing.T) {
	cfg := &ServerConfig{ID: "exits", Command: "/bin/sh", Args: []string{"-c", "sleep 0.05"}, Timeout: 2 * time.Second}
	transport := NewStdioTransport(cfg)

	ctx := context.Background()
	if err := transport.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(ctx, "initialize", nil)
	if err == nil {
		t.Fatal("expected an error once the server process exits")
	}
}
