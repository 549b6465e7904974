package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownChunkerEmptyFile(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.md", Content: []byte("   \n\n")})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestMarkdownChunkerSplitsByHeaderSections(t *testing.T) {
	c := NewMarkdownChunker()
	src := "# Title\n\nIntro paragraph.\n\n## Section A\n\nContent A.\n\n## Section B\n\nContent B.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(src), Language: "markdown"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "Section A", chunks[1].Metadata["section_title"])
	require.Equal(t, "Title > Section B", chunks[2].Metadata["header_path"])
	for _, chunk := range chunks {
		require.GreaterOrEqual(t, chunk.StartLine, 1)
		require.GreaterOrEqual(t, chunk.EndLine, chunk.StartLine)
		require.NotEmpty(t, chunk.Content)
	}
}

func TestMarkdownChunkerExtractsFrontmatter(t *testing.T) {
	c := NewMarkdownChunker()
	src := "---\ntitle: Doc\n---\n\n# Title\n\nBody text.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "doc.md", Content: []byte(src)})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Equal(t, "frontmatter", chunks[0].Metadata["type"])
}

func TestMarkdownChunkerSplitsLargeSectionByParagraphs(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MaxChunkBytes: 80, OverlapBytes: 10})
	var body strings.Builder
	body.WriteString("# Title\n\n")
	for i := 0; i < 10; i++ {
		body.WriteString("This is paragraph number that is reasonably long to force a split.\n\n")
	}

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.md", Content: []byte(body.String())})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
}

func TestMarkdownChunkerNoHeadersFallsBackToParagraphs(t *testing.T) {
	c := NewMarkdownChunker()
	src := "Just a paragraph.\n\nAnother paragraph.\n"
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "plain.md", Content: []byte(src)})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}
