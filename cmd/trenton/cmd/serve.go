package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/internal/app"
	"github.com/trentonhq/trenton/internal/server"
	"github.com/trentonhq/trenton/pkg/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing pipeline and HTTP API",
		Long: `Start Trenton as a long-running service: watch registered folders,
index new and changed media through the worker pool, and serve the
REST API.

Only one instance may use a data directory at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			logger, cleanup, err := serverLogger(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(ctx); err != nil {
				return err
			}
			logger.Info("trenton started",
				"version", version.Version,
				"data_dir", cfg.Paths.DataDir,
				"provider", cfg.Provider.Kind)

			srv := server.New(a, cfg.Server, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default from config)")
	return cmd
}
