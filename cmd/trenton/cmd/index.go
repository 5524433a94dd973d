package cmd

import (
	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/internal/store"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var folderID int64
	var incremental bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan folders and index their media",
		Long: `Run an indexing scan over registered folders.

A full scan re-embeds every supported file; an incremental scan skips
files whose size and modification time are unchanged since they were
last indexed. Files that vanished from disk are marked deleted either
way.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			kind := store.JobKindFullScan
			if incremental {
				kind = store.JobKindIncremental
			}

			var job *store.IndexingJob
			if folderID != 0 {
				job, err = a.Orchestrator.ScanFolder(ctx, folderID, kind)
			} else {
				job, err = a.Orchestrator.ScanAll(ctx, kind)
			}
			if err != nil {
				return err
			}
			printer.Job(job)
			return nil
		},
	}

	cmd.Flags().Int64Var(&folderID, "folder", 0, "Scan only this folder id (default: all active folders)")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Skip files unchanged since the last index")
	return cmd
}
