/*
Package cli implements the tool-finder-mcp commands.

Every command reads ~/.tool-finder-mcp.json (or --config), then applies
TOOL_FINDER_* environment variables and the shared flags on top of the file's
settings.
*/
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/hub"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
	"github.com/khanglvm/tool-finder-mcp/internal/version"
)

// Options holds the flags shared by every command.
type Options struct {
	ConfigPath string
	Debug      bool

	viper *viper.Viper
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &Options{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Semantic tool finder for MCP servers",
		Long: `tool-finder-mcp sits in front of your MCP servers and exposes two meta-tools
instead of every tool they offer:
  • retrieve_tools - find tools for natural-language capability descriptions
  • execute_tool   - call a tool by fingerprint

Tools are embedded once into a local SQLite index. Within a session, tools
the client has already received are returned by name and fingerprint only.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "Config file (default ~/.tool-finder-mcp.json)")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.String("db", "", "Index database path (default ~/.tool-finder-mcp/index.db)")
	_ = opts.viper.BindPFlag(config.KeyDatabasePath, flags.Lookup("db"))

	cmd.AddCommand(
		NewServeCmd(opts),
		NewIndexCmd(opts),
		NewRecommendCmd(opts),
		NewSessionsCmd(opts),
		NewMaintenanceCmd(opts),
		NewExportIndexCmd(opts),
		NewListCmd(opts),
		NewVerifyCmd(opts),
		NewInitCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// configPath returns --config or the default location.
func (o *Options) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return config.GetDefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults when it does not
// exist, and applies overrides. The database path is always resolved.
func (o *Options) loadConfig() (*config.Config, error) {
	path, err := o.configPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(cfg.Settings, o.viper)
	cfg.ApplyDefaults()

	if cfg.Settings.DatabasePath == "" {
		if cfg.Settings.DatabasePath, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (o *Options) logger() (*zap.Logger, error) {
	logger, err := logging.New(o.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// app is an opened hub with its logger.
type app struct {
	cfg    *config.Config
	hub    *hub.Hub
	logger *zap.Logger
}

// Close closes the hub and flushes the logger.
func (a *app) Close() error {
	err := a.hub.Close()
	_ = a.logger.Sync()
	return err
}

// openHub builds a hub from the loaded config and opens its store. It does
// not index.
func (o *Options) openHub(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}

	h, err := hub.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := h.Open(cmd.Context()); err != nil {
		_ = h.Close()
		return nil, err
	}
	return &app{cfg: cfg, hub: h, logger: logger}, nil
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
