package cmd

import (
	"bufio"

	"github.com/spf13/cobra"

	"github.com/kraklabs/codex-index/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var path string
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the codexctl log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath, err := logging.FindLogFile(path)
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			return logging.Tail(logPath, lines, w)
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "Log file path (default: "+logging.DefaultLogPath()+")")
	cmd.Flags().IntVar(&lines, "lines", 200, "Number of trailing lines to print (0 prints the whole file)")

	return cmd
}
