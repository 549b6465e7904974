package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kraklabs/codex-index/internal/app"
	"github.com/kraklabs/codex-index/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var extensions []string
	var ignorePatterns []string
	var plain bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for hybrid search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			renderer := ui.NewRenderer(ui.NewConfig(out, ui.WithForcePlain(plain)))
			start := time.Now()

			result, err := a.IndexCodebase(ctx, path, app.IndexCodebaseOptions{
				Force:                force,
				CustomExtensions:     extensions,
				CustomIgnorePatterns: ignorePatterns,
				OnProgress: func(percent int, phase string) {
					renderer.UpdateProgress(ui.ProgressEvent{
						Stage:   stageFromPhase(phase),
						Current: percent,
						Total:   100,
						Message: phase,
					})
				},
			})
			if err != nil {
				return err
			}

			renderer.Complete(ui.CompletionStats{
				Files:    result.IndexedFiles,
				Chunks:   result.TotalChunks,
				Duration: time.Since(start),
			})
			_, _ = fmt.Fprintf(out, "status: %s\n", result.Status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Restrict indexing to these extensions")
	cmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "Additional ignore patterns")
	cmd.Flags().BoolVar(&plain, "plain", false, "Force plain text progress output")

	return cmd
}

// stageFromPhase maps the pipeline's free-form phase message (spec §4.7
// step 9, e.g. "Scanning complete", "Indexing files") onto the fixed
// ui.Stage enum the renderer understands.
func stageFromPhase(phase string) ui.Stage {
	lower := strings.ToLower(phase)
	switch {
	case strings.Contains(lower, "scan"):
		return ui.StageScanning
	case strings.Contains(lower, "chunk"):
		return ui.StageChunking
	case strings.Contains(lower, "embed"):
		return ui.StageEmbedding
	case strings.Contains(lower, "complete"):
		return ui.StageComplete
	default:
		return ui.StageIndexing
	}
}
