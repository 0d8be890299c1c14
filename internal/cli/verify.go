package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/embedding"
	"github.com/khanglvm/tool-finder-mcp/internal/hub"
)

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration",
		Long: `Check that the configuration file exists and is valid, that groups only
name configured servers and that the embedding provider can be built.`,
		Example: `  tool-finder-mcp verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	return cmd
}

func runVerify(cmd *cobra.Command, opts *Options) error {
	out := cmd.OutOrStdout()

	path, err := opts.configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	config.ApplyOverrides(cfg.Settings, opts.viper)

	fmt.Fprintf(out, "✓ Config file: %s\n", path)
	fmt.Fprintf(out, "✓ Servers configured: %d (%d enabled)\n", len(cfg.Servers), len(cfg.EnabledServers()))
	for _, e := range serverEntries(cfg) {
		state := e.Command
		if e.Disabled {
			state += " (disabled)"
		}
		fmt.Fprintf(out, "✓ %s: %s\n", e.Name, state)
	}

	for _, w := range cfg.GroupWarnings() {
		fmt.Fprintf(out, "! %s\n", w)
	}

	e, err := embedding.New(hub.EmbeddingConfig(cfg.Settings), nil)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}
	fmt.Fprintf(out, "✓ Embedding model: %s\n", e.Model())
	return nil
}
