package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	queryType  string
	modalities []string
	folderIDs  []int64
	topK       int
	threshold  float64
	format     string
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var sopts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed media",
		Long: `Search indexed media by meaning.

A text query matches against every requested modality. An audio or
video query takes a local file path and matches files of compatible
modalities.

Examples:
  trenton search "dog barking at the mailman"
  trenton search "sunset over water" --modality video
  trenton search ~/clips/reference.mp4 --type video --limit 5
  trenton search "thunder" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			modalities := make([]media.Modality, 0, len(sopts.modalities))
			for _, m := range sopts.modalities {
				modalities = append(modalities, media.Modality(m))
			}
			resp, err := a.Engine.Search(ctx, search.Query{
				Value:      query,
				Kind:       search.Kind(sopts.queryType),
				Modalities: modalities,
				FolderIDs:  sopts.folderIDs,
				TopK:       sopts.topK,
				Threshold:  sopts.threshold,
			})
			if err != nil {
				return err
			}

			if sopts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printer.SearchResults(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sopts.queryType, "type", "t", "text", "Query type: text, audio, video")
	cmd.Flags().StringSliceVarP(&sopts.modalities, "modality", "m", nil, "Target modality (repeatable): audio, video, audio_video")
	cmd.Flags().Int64SliceVar(&sopts.folderIDs, "folder", nil, "Restrict to folder id (repeatable)")
	cmd.Flags().IntVarP(&sopts.topK, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&sopts.threshold, "threshold", 0, "Minimum similarity score")
	cmd.Flags().StringVarP(&sopts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func newSimilarCmd(opts *rootOptions) *cobra.Command {
	var topK int
	var folderIDs []int64

	cmd := &cobra.Command{
		Use:   "similar <file-id>",
		Short: "Find files similar to an indexed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid file id %q", args[0])
			}
			ctx := cmd.Context()
			a, printer, cleanup, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			defer a.Close()

			resp, err := a.Engine.FindSimilar(ctx, fileID, topK, folderIDs)
			if err != nil {
				return err
			}
			printer.SearchResults(resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Int64SliceVar(&folderIDs, "folder", nil, "Restrict to folder id (repeatable)")
	return cmd
}
