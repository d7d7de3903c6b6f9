// Package config loads the runtime's single TOML configuration file:
// backend credentials, the capability policy's allow/deny rules, configured
// MCP servers, and observability settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/conduitrun/conduit/internal/mcp"
	"github.com/conduitrun/conduit/internal/policy"
)

const (
	defaultConfigName = "conduit.toml"
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxRetries = 5
)

// Config is the root of the TOML configuration file.
type Config struct {
	Backend       BackendConfig       `toml:"backend"`
	Allow         policy.AllowRules   `toml:"allow"`
	Deny          policy.DenyRules    `toml:"deny"`
	MCPServers    []MCPServerConfig   `toml:"mcp_servers"`
	Observability ObservabilityConfig `toml:"observability"`
}

// BackendConfig configures the model provider. Exactly one of APIKey or
// OAuthToken must be set.
type BackendConfig struct {
	Provider          string  `toml:"provider"`
	Model             string  `toml:"model"`
	APIKey            string  `toml:"api_key"`
	OAuthToken        string  `toml:"oauth_token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxRetries        int     `toml:"max_retries"`
}

// MCPServerConfig is one `[[mcp_servers]]` entry.
type MCPServerConfig struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`
}

// ObservabilityConfig configures metrics export, tracing export, and log
// verbosity.
type ObservabilityConfig struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTelEndpoint string `toml:"otel_endpoint"`
	LogLevel     string `toml:"log_level"`
}

// DefaultPath returns the OS-appropriate default config file path, honoring
// XDG_CONFIG_HOME when set.
func DefaultPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return filepath.Join(dir, "conduit", defaultConfigName)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".config", "conduit", defaultConfigName)
}

// DefaultDataPath returns the OS-appropriate default path for the event log
// database, honoring XDG_DATA_HOME when set.
func DefaultDataPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "conduit", "events.db")
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "conduit", "events.db")
}

// Load reads, parses, applies defaults to, and validates the config file at
// path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses TOML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Provider == "" {
		c.Backend.Provider = "anthropic"
	}
	if c.Backend.Model == "" {
		c.Backend.Model = defaultModel
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = defaultMaxRetries
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// Validate reports a Config error for an ambiguous or missing auth section.
// Called once at load time; nothing downstream re-checks this.
func (c *Config) Validate() error {
	hasKey := strings.TrimSpace(c.Backend.APIKey) != ""
	hasOAuth := strings.TrimSpace(c.Backend.OAuthToken) != ""
	if hasKey && hasOAuth {
		return &ConfigError{Reason: "backend.api_key and backend.oauth_token are mutually exclusive"}
	}
	if !hasKey && !hasOAuth {
		return &ConfigError{Reason: "one of backend.api_key or backend.oauth_token is required"}
	}
	for i, server := range c.MCPServers {
		if strings.TrimSpace(server.Name) == "" {
			return &ConfigError{Reason: fmt.Sprintf("mcp_servers[%d]: name is required", i)}
		}
		if strings.TrimSpace(server.Command) == "" {
			return &ConfigError{Reason: fmt.Sprintf("mcp_servers[%d]: command is required", i)}
		}
	}
	return nil
}

// ConfigError reports a missing or ambiguous configuration value. It is
// always fatal at startup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Reason)
}

// Policy builds the capability policy described by the [allow]/[deny]
// sections.
func (c *Config) Policy() policy.Policy {
	return policy.Policy{Allow: c.Allow, Deny: c.Deny}
}

// MCPServers builds the internal/mcp server configs for every configured
// server, defaulting each one's request timeout.
func (c *Config) MCPServerConfigs() []mcp.ServerConfig {
	servers := make([]mcp.ServerConfig, 0, len(c.MCPServers))
	for _, s := range c.MCPServers {
		servers = append(servers, mcp.ServerConfig{
			ID:      s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
		})
	}
	return servers
}
