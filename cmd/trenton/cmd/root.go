// Package cmd provides the CLI commands for Trenton.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/internal/app"
	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/logging"
	"github.com/trentonhq/trenton/internal/ui"
	"github.com/trentonhq/trenton/pkg/version"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dataDir    string
	provider   string
	logLevel   string
	noColor    bool
}

// NewRootCmd creates the root command for the trenton CLI.
func NewRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "trenton",
		Short: "Multimodal media search over local folders",
		Long: `Trenton indexes audio and video files in registered folders and
searches them by meaning: free-text descriptions, or example audio
and video files.

Register a folder, let the indexer embed its media, then search:

  trenton folders add ~/Music --modality audio
  trenton search "soft piano with rain in the background"
  trenton serve`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("trenton version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (default: ~/.trenton)")
	cmd.PersistentFlags().StringVar(&opts.provider, "provider", "", "Embedding provider: http or static")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newFoldersCmd(&opts))
	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newSimilarCmd(&opts))
	cmd.AddCommand(newIndexCmd(&opts))
	cmd.AddCommand(newStatusCmd(&opts))
	cmd.AddCommand(newStatsCmd(&opts))
	cmd.AddCommand(newConfigCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware context cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig resolves configuration with flag overrides applied on top of
// the file and environment layers.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" && o.dataDir != "" {
		if candidate := defaultConfigPath(o.dataDir); candidate != "" {
			path = candidate
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.Paths.DataDir = o.dataDir
	}
	if o.provider != "" {
		cfg.Provider.Kind = o.provider
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.Paths.DataDir, err)
	}
	return cfg, nil
}

// defaultConfigPath returns <dataDir>/config.yaml when it exists.
func defaultConfigPath(dataDir string) string {
	path := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// cliLogger builds a stderr-only logger for one-shot commands. File
// logging stays off so command output is not duplicated into the log.
func cliLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	return logging.Setup(logCfg)
}

// serverLogger builds the serve-mode logger with file logging per config.
func serverLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.FilePath = cfg.LogFilePath()
	return logging.Setup(logCfg)
}

// openApp builds the application container plus a printer for command
// output. The caller owns closing the app.
func (o *rootOptions) openApp(ctx context.Context, cmd *cobra.Command) (*app.App, *ui.Printer, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, cleanup, err := cliLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	printer := ui.NewPrinter(cmd.OutOrStdout(), o.noColor)
	return a, printer, cleanup, nil
}
