package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/configs"
	"github.com/trentonhq/trenton/internal/ui"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the annotated default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.DataDir, "config.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
				return err
			}
			printer := ui.NewPrinter(cmd.OutOrStdout(), opts.noColor)
			printer.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir:       %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "database:       %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "provider:       %s", cfg.Provider.Kind)
			if cfg.Provider.Kind == "http" {
				fmt.Fprintf(out, " (%s, model %s)", cfg.Provider.Endpoint, cfg.Provider.Model)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "workers:        %d\n", cfg.Indexing.Workers)
			fmt.Fprintf(out, "event_cooldown: %s\n", cfg.Indexing.EventCooldown)
			fmt.Fprintf(out, "server:         %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "log_level:      %s\n", cfg.Logging.Level)
			return nil
		},
	}
}
