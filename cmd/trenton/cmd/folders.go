package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/internal/app"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/ui"
)

func newFoldersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage monitored folders",
	}
	cmd.AddCommand(newFoldersListCmd(opts))
	cmd.AddCommand(newFoldersAddCmd(opts))
	cmd.AddCommand(newFoldersRemoveCmd(opts))
	return cmd
}

func newFoldersListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored folders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			folders, err := a.Store.ListFolders(ctx, false)
			if err != nil {
				return err
			}
			rows := make([]ui.FolderRow, 0, len(folders))
			for _, f := range folders {
				n, err := a.Store.CountFilesByFolder(ctx, f.ID)
				if err != nil {
					return err
				}
				rows = append(rows, ui.FolderRow{Folder: f, FileCount: n})
			}
			printer.Folders(rows)
			return nil
		},
	}
}

func newFoldersAddCmd(opts *rootOptions) *cobra.Command {
	var modality string
	var noWait bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a folder and index its media",
		Long: `Register a directory for monitoring and start a full scan.

The modality filter restricts which files are indexed:
  audio        audio files only
  video        video files only
  audio_video  video files, embedded for combined audio+video search
  all          everything supported`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			folder, job, err := a.RegisterFolder(ctx, args[0], media.Modality(modality))
			if err != nil {
				return err
			}
			printer.Successf("Registered folder %d: %s (%s)", folder.ID, folder.Path, folder.Modality)

			if job == nil || noWait {
				return nil
			}
			final, err := waitForJob(ctx, a, printer, job.ID)
			if err != nil {
				return err
			}
			printer.Job(final)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modality, "modality", "m", "all", "Modality filter: audio, video, audio_video, all")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return immediately instead of waiting for the scan")
	return cmd
}

func newFoldersRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Deregister a folder and delete its index data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid folder id %q", args[0])
			}
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			if err := a.DeregisterFolder(ctx, id); err != nil {
				return err
			}
			printer.Successf("Removed folder %d", id)
			return nil
		},
	}
}

// waitForJob polls a job until it reaches a terminal state, printing
// progress along the way.
func waitForJob(ctx context.Context, a *app.App, printer *ui.Printer, jobID int64) (*store.IndexingJob, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastLine string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		job, err := a.Store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("job %d disappeared", jobID)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if line := ui.JobLine(job); line != lastLine {
			printer.Infof("%s", line)
			lastLine = line
		}
	}
}
