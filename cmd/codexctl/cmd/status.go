package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kraklabs/codex-index/internal/app"
	"github.com/kraklabs/codex-index/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show indexing status for one codebase, or every known codebase",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := ""
			if len(args) > 0 {
				path = args[0]
			}

			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := a.GetIndexingStatus(path)
			if err != nil {
				return err
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout())
			if asJSON {
				infos := make([]ui.StatusInfo, 0, len(statuses))
				for _, s := range statuses {
					infos = append(infos, statusInfoFrom(s))
				}
				return renderer.RenderJSON(infos)
			}
			for _, s := range statuses {
				if err := renderer.Render(statusInfoFrom(s)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func statusInfoFrom(s app.IndexingStatus) ui.StatusInfo {
	return ui.StatusInfo{
		ProjectName: s.Root,
		State:       s.State,
		Percent:     s.Percent,
		TotalFiles:  s.IndexedFiles,
		TotalChunks: s.TotalChunks,
		Error:       s.Error,
	}
}
