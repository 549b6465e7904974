// Package main provides the entry point for the codex-mcp server: an MCP
// stdio server exposing index_codebase, search_code, clear_index, and
// get_indexing_status to AI coding assistants.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kraklabs/codex-index/internal/app"
	"github.com/kraklabs/codex-index/internal/config"
	"github.com/kraklabs/codex-index/internal/logging"
	"github.com/kraklabs/codex-index/internal/mcpserver"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCfg := logging.DefaultConfig()
	if os.Getenv("CODEX_DEBUG") != "" {
		logCfg = logging.DebugConfig()
	}
	logger, loggingCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("codex-mcp: setup logging: %w", err)
	}
	defer loggingCleanup()
	slog.SetDefault(logger)

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("codex-mcp: getwd: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("codex-mcp: load config: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, ".context")

	a, err := app.New(ctx, cfg, dataDir, logger)
	if err != nil {
		return fmt.Errorf("codex-mcp: build app: %w", err)
	}
	defer a.Close()

	go a.Recon.Run(ctx)

	srv := mcpserver.NewServer(a, version)
	return srv.Serve(ctx, cfg.Server.Transport)
}
