package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParserParsesGoSource(t *testing.T) {
	p := NewParser()
	defer p.Close()

	src := []byte("package main\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")
	tree, err := p.Parse(context.Background(), src, "go")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)

	funcs := tree.Root.FindAllByType("function_declaration")
	require.Len(t, funcs, 1)
	require.Equal(t, "func Add(a, b int) int {\n\treturn a + b\n}", funcs[0].GetContent(src))
}

func TestParserUnsupportedLanguage(t *testing.T) {
	p := NewParser()
	defer p.Close()

	_, err := p.Parse(context.Background(), []byte("whatever"), "cobol")
	require.Error(t, err)
}

func TestNodeWalkVisitsAllNodes(t *testing.T) {
	p := NewParser()
	defer p.Close()

	src := []byte("package main\n\nfunc A() {}\nfunc B() {}\n")
	tree, err := p.Parse(context.Background(), src, "go")
	require.NoError(t, err)

	count := 0
	tree.Root.Walk(func(*Node) bool {
		count++
		return true
	})
	require.Greater(t, count, 2)
}
