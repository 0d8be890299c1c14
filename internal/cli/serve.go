package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/hub"
	"github.com/khanglvm/tool-finder-mcp/internal/mcp"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
//
// This is the main command that exposes retrieve_tools and execute_tool via
// stdio transport.
func NewServeCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the tool-finder-mcp server using stdio transport.

On startup the server lists the tools of every configured server and indexes
the ones it has not embedded yet. It then exposes 2 meta-tools:
  • retrieve_tools - find tools for natural-language capability descriptions
  • execute_tool   - call a tool by the fingerprint retrieve_tools returned

Child MCP servers are spawned on demand and kept in a bounded pool.`,
		Example: `  # Run directly
  tool-finder-mcp serve

  # Add to Claude Code
  claude mcp add tool-finder -- tool-finder-mcp serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	return cmd
}

// runServe starts the MCP server with stdio transport and signal handling.
// SIGINT and SIGTERM stop it gracefully.
func runServe(ctx context.Context, opts *Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	h, err := hub.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	if err := h.Open(ctx); err != nil {
		return err
	}

	if len(cfg.Servers) == 0 {
		logger.Warn("no servers configured", zap.String("hint", "add servers to the config file, see 'tool-finder-mcp init'"))
	}
	if _, err := h.Sync(ctx); err != nil {
		// Serve whatever is already indexed.
		logger.Error("initial indexing failed", zap.Error(err))
	}

	logger.Info("serving", zap.Int("servers", len(cfg.EnabledServers())), zap.String("model", h.Model()))
	err = mcp.NewServer(h, logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
