package toolhost

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/conduitrun/conduit/internal/mcp"
	"github.com/conduitrun/conduit/internal/observability"
	"github.com/conduitrun/conduit/pkg/runtime"
)

const echoServerScript = `
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"echo","version":"1.0"}}}'
      ;;
    *'"method":"tools/list"'*)
      echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo","description":"echoes text","inputSchema":{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}}]}}'
      ;;
    *'"method":"tools/call"'*)
      echo '{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"ok"}]}}'
      ;;
  esac
done
`

func newTestManager(t *testing.T) *mcp.Manager {
	t.Helper()
	tracer, _ := observability.NewTracer(observability.TraceConfig{ServiceName: "conduit-test"})
	mgr, err := mcp.NewManager([]mcp.ServerConfig{
		{ID: "echo", Command: "/bin/sh", Args: []string{"-c", echoServerScript}, Timeout: 2 * time.Second},
	}, tracer, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func TestMCPHost_ExecuteValidInput(t *testing.T) {
	mgr := newTestManager(t)
	tracer, _ := observability.NewTracer(observability.TraceConfig{ServiceName: "conduit-test"})
	host, err := NewMCPHost(mgr, observability.NewMetrics(), tracer, nil)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	if len(host.Specs()) != 1 {
		t.Fatalf("got %d specs, want 1", len(host.Specs()))
	}

	call := runtime.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)}
	result := host.Execute(context.Background(), call)
	if result.Status != runtime.ToolResultSuccess {
		t.Fatalf("got status %v, want success: %+v", result.Status, result.Err)
	}
}

func TestMCPHost_ExecuteInvalidInputRejectedBeforeDispatch(t *testing.T) {
	mgr := newTestManager(t)
	tracer, _ := observability.NewTracer(observability.TraceConfig{ServiceName: "conduit-test"})
	host, err := NewMCPHost(mgr, observability.NewMetrics(), tracer, nil)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	call := runtime.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`)}
	result := host.Execute(context.Background(), call)
	if result.Status != runtime.ToolResultFailure {
		t.Fatalf("got status %v, want failure (missing required field)", result.Status)
	}
	if result.Err.Kind != runtime.ToolErrorInvalidInput {
		t.Fatalf("got kind %v, want invalid_input", result.Err.Kind)
	}
}
