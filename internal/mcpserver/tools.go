package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kraklabs/codex-index/internal/app"
)

// IndexCodebaseInput is index_codebase's MCP input schema.
type IndexCodebaseInput struct {
	Path                 string   `json:"path" jsonschema:"absolute path of the codebase to index"`
	Force                bool     `json:"force,omitempty" jsonschema:"rebuild the index even if one already exists"`
	CustomExtensions     []string `json:"custom_extensions,omitempty" jsonschema:"restrict indexing to these file extensions"`
	CustomIgnorePatterns []string `json:"custom_ignore_patterns,omitempty" jsonschema:"additional gitignore-style patterns to exclude"`
}

// IndexCodebaseOutput is index_codebase's MCP result.
type IndexCodebaseOutput struct {
	IndexedFiles int    `json:"indexed_files"`
	TotalChunks  int    `json:"total_chunks"`
	Status       string `json:"status"`
}

// SearchCodeInput is search_code's MCP input schema.
type SearchCodeInput struct {
	Path            string   `json:"path" jsonschema:"absolute path identifying which indexed codebase (or subtree) to search"`
	Query           string   `json:"query" jsonschema:"the search query"`
	Limit           int      `json:"limit,omitempty" jsonschema:"maximum results, capped at 50; 0 or omitted means 50"`
	ExtensionFilter []string `json:"extension_filter,omitempty" jsonschema:"restrict results to these languages"`
	Threshold       float64  `json:"threshold,omitempty" jsonschema:"minimum score cutoff, 0 uses the configured default"`
}

// SearchCodeOutput is search_code's MCP result.
type SearchCodeOutput struct {
	Results []SearchHitOutput `json:"results"`
}

// SearchHitOutput is one search_code result.
type SearchHitOutput struct {
	RelativePath string  `json:"relative_path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Language     string  `json:"language,omitempty"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

// ClearIndexInput is clear_index's MCP input schema.
type ClearIndexInput struct {
	Path string `json:"path" jsonschema:"absolute path of the codebase whose index should be removed"`
}

// ClearIndexOutput is clear_index's MCP result.
type ClearIndexOutput struct {
	Cleared bool `json:"cleared"`
}

// IndexingStatusInput is get_indexing_status's MCP input schema.
type IndexingStatusInput struct {
	Path string `json:"path,omitempty" jsonschema:"absolute path to report on; omit for every known codebase"`
}

// IndexingStatusOutput is get_indexing_status's MCP result.
type IndexingStatusOutput struct {
	Codebases []IndexingStatusEntry `json:"codebases"`
}

// IndexingStatusEntry is one codebase's status row.
type IndexingStatusEntry struct {
	Root         string `json:"root"`
	State        string `json:"state"`
	Percent      int    `json:"percent"`
	IndexedFiles int    `json:"indexed_files"`
	TotalChunks  int    `json:"total_chunks"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a codebase (or a subtree of one) so it can be searched. Builds both the vector and keyword indices and registers the root for later reconciliation.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Search an already-indexed codebase with hybrid (BM25 + semantic) search and return ranked code chunks.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_index",
		Description: "Remove a codebase's index: drops its vector collection, its snapshot, and its registry entry.",
	}, s.handleClearIndex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_indexing_status",
		Description: "Report indexing state for one codebase, or every known codebase if no path is given.",
	}, s.handleGetIndexingStatus)

	s.logger.Debug("mcp tools registered", slog.Int("count", 4))
}

func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, input IndexCodebaseInput) (*mcp.CallToolResult, IndexCodebaseOutput, error) {
	result, err := s.app.IndexCodebase(ctx, input.Path, app.IndexCodebaseOptions{
		Force:                input.Force,
		CustomExtensions:     input.CustomExtensions,
		CustomIgnorePatterns: input.CustomIgnorePatterns,
	})
	if err != nil {
		return nil, IndexCodebaseOutput{}, err
	}
	return nil, IndexCodebaseOutput{
		IndexedFiles: result.IndexedFiles,
		TotalChunks:  result.TotalChunks,
		Status:       result.Status,
	}, nil
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	opts := app.SearchCodeOptions{Limit: input.Limit, ExtensionFilter: input.ExtensionFilter}
	if input.Threshold > 0 {
		opts.Threshold = &input.Threshold
	}

	hits, err := s.app.SearchCode(ctx, input.Path, input.Query, opts)
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}

	out := SearchCodeOutput{Results: make([]SearchHitOutput, 0, len(hits))}
	for _, h := range hits {
		out.Results = append(out.Results, SearchHitOutput{
			RelativePath: h.RelativePath,
			StartLine:    h.StartLine,
			EndLine:      h.EndLine,
			Language:     h.Language,
			Score:        h.Score,
			Content:      h.Content,
		})
	}
	return nil, out, nil
}

func (s *Server) handleClearIndex(ctx context.Context, _ *mcp.CallToolRequest, input ClearIndexInput) (*mcp.CallToolResult, ClearIndexOutput, error) {
	if err := s.app.ClearIndex(ctx, input.Path); err != nil {
		return nil, ClearIndexOutput{}, err
	}
	return nil, ClearIndexOutput{Cleared: true}, nil
}

func (s *Server) handleGetIndexingStatus(ctx context.Context, _ *mcp.CallToolRequest, input IndexingStatusInput) (*mcp.CallToolResult, IndexingStatusOutput, error) {
	statuses, err := s.app.GetIndexingStatus(input.Path)
	if err != nil {
		return nil, IndexingStatusOutput{}, err
	}

	out := IndexingStatusOutput{Codebases: make([]IndexingStatusEntry, 0, len(statuses))}
	for _, st := range statuses {
		out.Codebases = append(out.Codebases, IndexingStatusEntry{
			Root:         st.Root,
			State:        st.State,
			Percent:      st.Percent,
			IndexedFiles: st.IndexedFiles,
			TotalChunks:  st.TotalChunks,
			Error:        st.Error,
		})
	}
	return nil, out, nil
}
