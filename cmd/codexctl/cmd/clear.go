package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Remove a codebase's index (collection, snapshot, and registry entry)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.ClearIndex(ctx, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
			return nil
		},
	}
	return cmd
}
