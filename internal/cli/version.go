package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/version"
)

// NewVersionCmd creates the 'version' command.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the current version, commit hash, and build date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, info)
			}
			fmt.Fprintf(out, "Version:  %s\n", info.Version)
			fmt.Fprintf(out, "Commit:   %s\n", info.Commit)
			fmt.Fprintf(out, "Built:    %s\n", info.Date)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
