package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduitrun/conduit/internal/audit"
	"github.com/conduitrun/conduit/internal/backend"
	"github.com/conduitrun/conduit/internal/config"
	"github.com/conduitrun/conduit/internal/eventlog"
	"github.com/conduitrun/conduit/internal/mcp"
	"github.com/conduitrun/conduit/internal/observability"
	"github.com/conduitrun/conduit/internal/policy"
	"github.com/conduitrun/conduit/internal/retry"
	"github.com/conduitrun/conduit/internal/session"
	"github.com/conduitrun/conduit/internal/toolhost"
)

// runChat loads configuration, wires the backend/policy/tool host, opens
// the event log, and drives one REPL turn loop over stdin/stdout until EOF
// or interruption.
func runChat(cmd *cobra.Command, configPath, dbPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: "text",
		Output: cmd.ErrOrStderr(),
	}).Slog()

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "conduit",
		Endpoint:    cfg.Observability.OTelEndpoint,
	})
	defer shutdownTracer(context.Background())

	store, err := eventlog.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	policyResolver, err := policy.NewResolverWithLoader(configPath, configFilePolicy, logger)
	if err != nil {
		return err
	}
	defer policyResolver.Close()

	host, closeHost, err := buildToolHost(ctx, cfg, metrics, tracer, logger)
	if err != nil {
		return err
	}
	defer closeHost()

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = true
	auditCfg.Output = "stderr"
	auditCfg.IncludeToolInput = true
	auditLogger, err := audit.NewLogger(auditCfg)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	anthropicBackend, err := backend.NewAnthropicBackend(backend.AnthropicConfig{
		APIKey:            cfg.Backend.APIKey,
		OAuthToken:        cfg.Backend.OAuthToken,
		Model:             cfg.Backend.Model,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Retry:             retry.Exponential(cfg.Backend.MaxRetries, 500*time.Millisecond, 30*time.Second),
	}, metrics, tracer, logger)
	if err != nil {
		return err
	}

	sess, err := session.New(ctx, session.Config{
		Events:  store,
		Backend: anthropicBackend,
		Policy:  policyResolver,
		Host:    host,
		Metrics: metrics,
		Tracer:  tracer,
		Logger:  logger,
		Audit:   auditLogger,
	})
	if err != nil {
		return err
	}
	defer sess.End(context.Background())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s\n", sess.ID())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		text, usage, err := sess.Chat(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, text)
		logger.Debug("turn usage", "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	return scanner.Err()
}

// configFilePolicy loads the whole conduit.toml at path and projects out its
// [allow]/[deny] sections, so policy.Resolver can watch the single
// configuration file for changes rather than a separate policy-only file.
func configFilePolicy(path string) (policy.Policy, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return policy.Policy{}, err
	}
	return cfg.Policy(), nil
}

// buildToolHost connects every configured MCP server and wraps them in a
// single toolhost.Host. With no servers configured, it returns
// toolhost.EmptyHost and a no-op closer.
func buildToolHost(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) (toolhost.Host, func(), error) {
	servers := cfg.MCPServerConfigs()
	if len(servers) == 0 {
		return toolhost.EmptyHost{}, func() {}, nil
	}

	manager, err := mcp.NewManager(servers, tracer, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Connect(ctx); err != nil {
		return nil, nil, err
	}

	host, err := toolhost.NewMCPHost(manager, metrics, tracer, logger)
	if err != nil {
		manager.Close()
		return nil, nil, err
	}
	return host, manager.Close, nil
}
