package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	info := StatusInfo{}

	assert.Empty(t, info.ProjectName)
	assert.Equal(t, 0, info.TotalFiles)
	assert.Equal(t, 0, info.TotalChunks)
	assert.True(t, info.LastIndexed.IsZero())
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	info := StatusInfo{
		ProjectName: "test-project",
		State:       "indexed",
		TotalFiles:  100,
		TotalChunks: 500,
		LastIndexed: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "test-project", parsed["project_name"])
	assert.Equal(t, float64(100), parsed["total_files"])
	assert.Equal(t, float64(500), parsed["total_chunks"])
	assert.Equal(t, "indexed", parsed["state"])
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf)

	info := StatusInfo{
		ProjectName: "my-project",
		State:       "indexed",
		TotalFiles:  50,
		TotalChunks: 250,
		LastIndexed: time.Now(),
	}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "my-project")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "250")
	assert.Contains(t, output, "indexed")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf)

	infos := []StatusInfo{{
		ProjectName: "json-project",
		TotalFiles:  25,
		TotalChunks: 100,
	}}

	err := r.RenderJSON(infos)
	require.NoError(t, err)

	var parsed []StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "json-project", parsed[0].ProjectName)
	assert.Equal(t, 25, parsed[0].TotalFiles)
}

func TestStatusRenderer_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf)

	info := StatusInfo{ProjectName: "plain-project", State: "indexed"}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_IndexFailedShowsError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf)

	info := StatusInfo{
		ProjectName: "broken-project",
		State:       "indexfailed",
		Error:       "ollama: connection refused",
	}

	err := r.Render(info)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "indexfailed")
	assert.Contains(t, output, "ollama: connection refused")
}

func TestStatusRenderer_IndexingShowsProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf)

	info := StatusInfo{
		ProjectName: "in-progress",
		State:       "indexing",
		Percent:     42,
	}

	err := r.Render(info)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "42%")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}
