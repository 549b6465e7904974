package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kraklabs/codex-index/internal/app"
)

func newSearchCmd() *cobra.Command {
	var path string
	var limit int
	var extensions []string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if path == "" {
				path = "."
			}

			opts := app.SearchCodeOptions{Limit: limit, ExtensionFilter: extensions}
			if threshold > 0 {
				opts.Threshold = &threshold
			}

			hits, err := a.SearchCode(ctx, path, args[0], opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, h := range hits {
				fmt.Fprintf(out, "%s:%d-%d (%.3f) [%s]\n", h.RelativePath, h.StartLine, h.EndLine, h.Score, h.Language)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Codebase root to search (default: current directory)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results (capped at 50)")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Restrict to these languages/extensions")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum score (0 = use default)")

	return cmd
}
