package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduitrun/conduit/internal/eventlog"
)

func buildSessionsCmd(dbPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := eventlog.Open(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(summaries) > limit {
				summaries = summaries[:limit]
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No sessions.")
				return nil
			}
			for _, s := range summaries {
				status := "active"
				if s.EndedAt != nil {
					status = "ended " + s.EndedAt.Format("2006-01-02T15:04:05Z")
				}
				fmt.Fprintf(out, "%s  started %s  %d messages  %s\n",
					s.ID, s.StartedAt.Format("2006-01-02T15:04:05Z"), s.MessageCount, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show")
	return cmd
}
