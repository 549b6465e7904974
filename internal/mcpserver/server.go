// Package mcpserver exposes the four public operations (index_codebase,
// search_code, clear_index, get_indexing_status) as MCP tools over
// mcp-go-sdk's stdio transport, run by a single Serve call
// wired against this repo's App.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kraklabs/codex-index/internal/app"
)

// Server bridges the App's four operations to MCP tool calls.
type Server struct {
	mcp    *mcp.Server
	app    *app.App
	logger *slog.Logger
}

// NewServer builds a Server over a, registering its tools immediately.
func NewServer(a *app.App, serverVersion string) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codex-index",
		Version: serverVersion,
	}, nil)
	s.registerTools()
	return s
}

// Serve runs the server over transport ("stdio" is the only one
// implemented, matching spec §6's ambient CLI/MCP glue).
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("mcp server stopped with error", "error", err)
		}
		return err
	default:
		return fmt.Errorf("mcpserver: unsupported transport %q", transport)
	}
}
