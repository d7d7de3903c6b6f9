package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduitrun/conduit/internal/eventlog"
	"github.com/conduitrun/conduit/pkg/runtime"
)

// SessionNotFoundError reports that a session-id prefix matched no session.
type SessionNotFoundError struct {
	Prefix string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("no session matches prefix %q", e.Prefix)
}

// AmbiguousSessionError reports that a session-id prefix matched more than
// one session; every match is listed so the caller can disambiguate.
type AmbiguousSessionError struct {
	Prefix  string
	Matches []runtime.SessionId
}

func (e *AmbiguousSessionError) Error() string {
	ids := make([]string, 0, len(e.Matches))
	for _, id := range e.Matches {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("prefix %q is ambiguous, matches: %s", e.Prefix, strings.Join(ids, ", "))
}

// resolveSessionPrefix finds the single session whose id starts with prefix.
func resolveSessionPrefix(ctx context.Context, store *eventlog.Store, prefix string) (runtime.SessionId, error) {
	summaries, err := store.ListSessions(ctx)
	if err != nil {
		return runtime.SessionId{}, err
	}

	var matches []runtime.SessionId
	for _, s := range summaries {
		if strings.HasPrefix(s.ID.String(), prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return runtime.SessionId{}, &SessionNotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		return runtime.SessionId{}, &AmbiguousSessionError{Prefix: prefix, Matches: matches}
	}
}

func buildLogsCmd(dbPath *string) *cobra.Command {
	var sessionPrefix string
	var kind string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print events for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sessionPrefix) == "" {
				return fmt.Errorf("--session is required")
			}

			store, err := eventlog.Open(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessionID, err := resolveSessionPrefix(cmd.Context(), store, sessionPrefix)
			if err != nil {
				return err
			}

			events, err := store.LoadEvents(cmd.Context(), sessionID, runtime.EventKindName(kind))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range events {
				fmt.Fprintf(out, "%s  %s  %s\n", e.Timestamp.Format("2006-01-02T15:04:05.000Z"), e.Kind.Name, describeKind(e.Kind))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionPrefix, "session", "s", "", "Session id prefix (required)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by event kind name (e.g. message, tool_call, tool_result)")
	return cmd
}

func describeKind(k runtime.EventKind) string {
	switch k.Name {
	case runtime.EventKindMessage:
		return fmt.Sprintf("role=%s content=%q", k.Role, k.Content)
	case runtime.EventKindToolCall:
		return fmt.Sprintf("tool=%s input=%s", k.ToolName, string(k.Input))
	case runtime.EventKindToolResult:
		return fmt.Sprintf("tool=%s output=%s", k.ToolName, string(k.Output))
	default:
		return ""
	}
}
