package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewSessionsCmd creates the 'sessions' command group.
func NewSessionsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and clear session retrieval history",
		Long: `A session records which tools it has been sent. These commands list
sessions, show what a session holds and clear it so its tools are sent in
full again.`,
	}

	cmd.AddCommand(
		newSessionsListCmd(opts),
		newSessionsHistoryCmd(opts),
		newSessionsStatsCmd(opts),
		newSessionsClearCmd(opts),
	)
	return cmd
}

func newSessionsListCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openHub(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.hub.Store().ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions.")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "  %s  %3d tools  last %s\n", s.SessionID, s.Count, formatTime(s.LastRetrievedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func newSessionsHistoryCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the tools a session has been sent, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openHub(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.hub.Store().SessionHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "Session %s has no history.\n", args[0])
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "  %s  %-40s %s\n", formatTime(e.RetrievedAt), e.ToolName, e.Fingerprint)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func newSessionsStatsCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats <session-id>",
		Short: "Summarize a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openHub(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			stats, err := a.hub.Store().SessionStats(ctx, args[0])
			if err != nil {
				return err
			}
			searches, err := a.hub.Store().CountSearches(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, struct {
					SessionID        string    `json:"session_id"`
					Tools            int       `json:"tools"`
					Searches         int       `json:"searches"`
					FirstRetrievedAt time.Time `json:"first_retrieved_at"`
					LastRetrievedAt  time.Time `json:"last_retrieved_at"`
				}{args[0], stats.Count, searches, stats.FirstRetrievedAt, stats.LastRetrievedAt})
			}

			fmt.Fprintf(out, "Session:  %s\n", args[0])
			fmt.Fprintf(out, "Tools:    %d\n", stats.Count)
			fmt.Fprintf(out, "Searches: %d\n", searches)
			if stats.Count > 0 {
				fmt.Fprintf(out, "First:    %s\n", formatTime(stats.FirstRetrievedAt))
				fmt.Fprintf(out, "Last:     %s\n", formatTime(stats.LastRetrievedAt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func newSessionsClearCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Forget which tools a session has been sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openHub(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.hub.Store().ClearSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %d entries from session %s\n", removed, args[0])
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
