package chunk

import (
	"context"
)

// Splitter is the public entry point for the Splitter component (C3): it
// dispatches content to the syntax-aware code chunker, the markdown
// chunker, or the plain character-window fallback based on language
// (spec §4.3's `split(content, language, file_path)` operation).
type Splitter struct {
	code     *CodeChunker
	markdown *MarkdownChunker
}

// NewSplitter creates a Splitter with default chunker options.
func NewSplitter() *Splitter {
	return &Splitter{
		code:     NewCodeChunker(),
		markdown: NewMarkdownChunker(),
	}
}

// Close releases chunker resources (tree-sitter parser handles).
func (s *Splitter) Close() {
	s.code.Close()
	s.markdown.Close()
}

// Split implements spec §4.3: prefer the syntax-aware strategy when a
// grammar is available for language, fall back to markdown section
// chunking for markdown, and otherwise use the character-window strategy.
// Empty content yields zero chunks.
func (s *Splitter) Split(ctx context.Context, content []byte, language, filePath string) ([]*Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	file := &FileInput{Path: filePath, Content: content, Language: language}

	switch language {
	case "markdown":
		return s.markdown.Chunk(ctx, file)
	default:
		return s.code.Chunk(ctx, file)
	}
}
