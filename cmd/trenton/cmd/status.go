package cmd

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent indexing jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			jobs, err := a.Store.ListRecentJobs(ctx, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				printer.Infof("No indexing jobs yet.")
				return nil
			}
			for i := range jobs {
				printer.Job(&jobs[i])
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of jobs to show")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			stats, err := a.CollectStats(ctx)
			if err != nil {
				return err
			}
			printer.Stats(stats)
			return nil
		},
	}
}
