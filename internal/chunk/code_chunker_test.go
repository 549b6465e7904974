package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeChunkerEmptyFileYieldsZeroChunks(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.go", Content: nil, Language: "go"})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestCodeChunkerGroupsSmallTopLevelDeclarations(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	src := "package main\n\nfunc A() {}\n\nfunc B() {}\n\nfunc C() {}\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "main.go", Content: []byte(src), Language: "go"})
	require.NoError(t, err)
	require.Len(t, chunks, 1, "small sibling functions should be grouped into one chunk")

	chunk := chunks[0]
	require.GreaterOrEqual(t, chunk.StartLine, 1)
	require.GreaterOrEqual(t, chunk.EndLine, chunk.StartLine)
	require.NotEmpty(t, chunk.Content)
	require.Equal(t, "main.go", chunk.FilePath)
	require.Len(t, chunk.Symbols, 3)
}

func TestCodeChunkerSplitsOversizedDeclaration(t *testing.T) {
	c := NewCodeChunkerWithOptions(CodeChunkerOptions{MaxChunkBytes: 200, OverlapBytes: 40})
	defer c.Close()

	var body strings.Builder
	body.WriteString("package main\n\nfunc Big() {\n")
	for i := 0; i < 60; i++ {
		body.WriteString("\tvar x = 1\n")
	}
	body.WriteString("}\n")

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.go", Content: []byte(body.String()), Language: "go"})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len(chunk.RawContent), 200+40)
		require.GreaterOrEqual(t, chunk.StartLine, 1)
		require.GreaterOrEqual(t, chunk.EndLine, chunk.StartLine)
	}
}

func TestCodeChunkerFallsBackForUnsupportedLanguage(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	src := strings.Repeat("some line of text\n", 5)
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "script.zig", Content: []byte(src), Language: "zig"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.Equal(t, ContentTypeText, chunks[0].ContentType)
}

func TestCodeChunkerIncludesDocCommentInGroup(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()

	src := "package main\n\n// Add sums two integers.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "main.go", Content: []byte(src), Language: "go"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].RawContent, "// Add sums two integers.")
}
