// Package main provides the CLI entry point for conduit, a local-first
// agentic runtime: one conversation loop per invocation, driven against an
// Anthropic model and zero or more MCP tool servers, with every turn
// durably recorded to a local SQLite event log.
//
// # Basic usage
//
//	conduit chat
//	conduit sessions --limit 20
//	conduit logs --session 3f9a --kind tool_call
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduitrun/conduit/internal/config"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	var dbPath string

	rootCmd := &cobra.Command{
		Use:     "conduit",
		Short:   "conduit - a local-first agentic runtime",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `conduit drives one conversation turn loop at a time against a model
backend and a set of MCP tool servers, recording every message and tool
call to a local, append-only SQLite event log.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, dbPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDataPath(), "Path to the event log SQLite database")

	rootCmd.AddCommand(
		buildChatCmd(&configPath, &dbPath),
		buildSessionsCmd(&dbPath),
		buildLogsCmd(&dbPath),
	)
	return rootCmd
}

func buildChatCmd(configPath, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat turn loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, *configPath, *dbPath)
		},
	}
}
