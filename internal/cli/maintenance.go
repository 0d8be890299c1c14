package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMaintenanceCmd creates the 'maintenance' command.
func NewMaintenanceCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Delete expired search history and reclaim orphan vectors",
		Long: `Remove search history older than historyRetentionDays and delete embedding
vectors no indexed tool refers to any more.`,
		Example: `  tool-finder-mcp maintenance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openHub(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.hub.Maintain(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, m)
			}
			fmt.Fprintf(out, "✓ Removed %d search records older than %d days\n", m.HistoryRemoved, a.cfg.Settings.HistoryRetentionDays)
			fmt.Fprintf(out, "✓ Swept %d orphan vectors\n", m.VectorsSwept)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
