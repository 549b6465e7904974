// Package cmd provides the CLI commands for codexctl.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kraklabs/codex-index/internal/app"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/logging"
)

var debugMode bool

// NewRootCmd creates the root command for codexctl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codexctl",
		Short: "Local-first code index and hybrid search engine",
		Long: `codexctl indexes codebases into a local vector store and serves
hybrid (BM25 + semantic) search over them for AI coding assistants.`,
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// buildApp loads config and constructs the shared App wiring inline, once
// per invocation, rather than through a long-lived daemon process.
func buildApp(ctx context.Context) (*app.App, func(), error) {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, loggingCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("codexctl: setup logging: %w", err)
	}
	slog.SetDefault(logger)

	root, err := os.Getwd()
	if err != nil {
		loggingCleanup()
		return nil, nil, fmt.Errorf("codexctl: getwd: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		loggingCleanup()
		return nil, nil, fmt.Errorf("codexctl: load config: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, ".context")

	a, err := app.New(ctx, cfg, dataDir, logger)
	if err != nil {
		loggingCleanup()
		return nil, nil, err
	}

	cleanup := func() {
		_ = a.Close()
		loggingCleanup()
	}
	return a, cleanup, nil
}
