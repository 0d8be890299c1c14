package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
)

// NewInitCmd creates the 'init' command that writes a starter config.
func NewInitCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with default settings",
		Example: `  tool-finder-mcp init
  tool-finder-mcp init --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists: %s (use --force to overwrite)", path)
			}

			if err := config.Save(config.NewConfig(), path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Wrote %s\n", path)
			fmt.Fprintln(out, "Add servers under \"servers\", then run 'tool-finder-mcp index'.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	return cmd
}
