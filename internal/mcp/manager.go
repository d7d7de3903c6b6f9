package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/conduitrun/conduit/internal/observability"
)

// Manager owns one Client per configured MCP server and exposes them as a
// single pool, connecting and disconnecting them together.
type Manager struct {
	clients []*Client
	logger  *slog.Logger
}

// NewManager builds a Manager for the given server configs. Connect must be
// called before the clients are usable.
func NewManager(configs []ServerConfig, tracer *observability.Tracer, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clients := make([]*Client, 0, len(configs))
	for i := range configs {
		cfg := configs[i]
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("mcp server config: %w", err)
		}
		clients = append(clients, NewClient(&cfg, tracer, logger))
	}
	return &Manager{clients: clients, logger: logger}, nil
}

// Connect connects every managed server. It stops at the first failure and
// closes any servers already connected.
func (m *Manager) Connect(ctx context.Context) error {
	connected := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		if err := c.Connect(ctx); err != nil {
			for _, done := range connected {
				done.Close()
			}
			return fmt.Errorf("connect mcp server %q: %w", c.ID(), err)
		}
		connected = append(connected, c)
	}
	return nil
}

// Close disconnects every managed server.
func (m *Manager) Close() {
	for _, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Warn("error closing mcp server", "server", c.ID(), "error", err)
		}
	}
}

// Clients returns the managed clients in configuration order.
func (m *Manager) Clients() []*Client {
	return m.clients
}

// ClientForTool returns the client whose last RefreshTools cached a tool
// with the given name. First-registered-wins: if two servers expose the
// same tool name, the one listed earliest in configuration is used and the
// rest are logged and ignored.
func (m *Manager) ClientForTool(name string) (*Client, Tool, bool) {
	for _, c := range m.clients {
		for _, t := range c.Tools() {
			if t.Name == name {
				return c, t, true
			}
		}
	}
	return nil, Tool{}, false
}

// AllTools returns every tool across every server, deduplicated by name on a
// first-registered-wins basis, sorted by name for stable ordering.
func (m *Manager) AllTools() []Tool {
	seen := make(map[string]struct{})
	var tools []Tool
	for _, c := range m.clients {
		for _, t := range c.Tools() {
			if _, dup := seen[t.Name]; dup {
				m.logger.Warn("duplicate tool name across mcp servers, keeping first registration", "tool", t.Name, "server", c.ID())
				continue
			}
			seen[t.Name] = struct{}{}
			tools = append(tools, t)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
