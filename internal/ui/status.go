package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is one codebase's indexing status, rendered by StatusRenderer.
type StatusInfo struct {
	ProjectName string    `json:"project_name"`
	State       string    `json:"state"`
	Percent     int       `json:"percent"`
	TotalFiles  int       `json:"total_files"`
	TotalChunks int       `json:"total_chunks"`
	LastIndexed time.Time `json:"last_indexed"`
	Error       string    `json:"error,omitempty"`
}

// StatusRenderer displays get_indexing_status reports.
type StatusRenderer struct {
	out io.Writer
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer) *StatusRenderer {
	return &StatusRenderer{out: out}
}

// Render displays one codebase's status as plain text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s (%s)\n", info.ProjectName, info.State)
	_, _ = fmt.Fprintf(r.out, "  Files:  %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Chunks: %d\n", info.TotalChunks)
	if info.State == "indexing" {
		_, _ = fmt.Fprintf(r.out, "  Progress: %d%%\n", info.Percent)
	}
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	if info.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  Error: %s\n", info.Error)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(infos []StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(infos)
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
