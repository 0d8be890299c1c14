package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/indexer"
)

// NewIndexCmd creates the 'index' command for resyncing the tool index.
func NewIndexCmd(opts *Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the tools of every configured server",
		Long: `List the tools of every enabled server and embed the ones that are not
indexed yet. Near-duplicates of indexed tools are evicted. Running it again
over an unchanged tool set embeds nothing.`,
		Example: `  tool-finder-mcp index
  tool-finder-mcp index --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output the report as JSON")

	return cmd
}

func runIndex(cmd *cobra.Command, opts *Options, jsonOutput bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	unlock, err := lockFile(cfg.Settings.DatabasePath, "index")
	if err != nil {
		return err
	}
	defer unlock()

	a, err := opts.openHub(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.hub.Sync(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, r indexer.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Synced %d live tools in %s\n", r.Discovered, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Skipped:    %d\n", r.Skipped)
	fmt.Fprintf(out, "  Embedded:   %d\n", r.Embedded)
	fmt.Fprintf(out, "  Committed:  %d\n", r.Committed)
	if r.Failed > 0 {
		fmt.Fprintf(out, "  Failed:     %d (retried on the next run)\n", r.Failed)
	}
	if r.Evicted > 0 || r.Superseded > 0 {
		fmt.Fprintf(out, "  Evicted:    %d\n", r.Evicted)
		fmt.Fprintf(out, "  Superseded: %d\n", r.Superseded)
	}
}

// lockFile takes an exclusive advisory lock next to path. It fails fast when
// another process holds it.
func lockFile(path, what string) (func(), error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire lock (another %s in progress?): %s", what, lock.Path())
	}

	return func() { _ = lock.Unlock() }, nil
}
