package pipeline

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/kraklabs/codex-index/internal/chunk"
)

// monotonicPercent enforces spec §4.7 step 9 / §5's monotone-non-decreasing
// progress guarantee across concurrently reporting goroutines.
type monotonicPercent struct {
	mu   sync.Mutex
	best int
}

func newMonotonicPercent() *monotonicPercent {
	return &monotonicPercent{}
}

// advance reports whether percent is a genuine increase, recording it if so.
func (m *monotonicPercent) advance(percent int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if percent <= m.best {
		return false
	}
	m.best = percent
	return true
}

func (m *monotonicPercent) last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best
}

// readFileBounded reads a file the scanner has already size-checked.
func readFileBounded(absPath string) ([]byte, error) {
	return os.ReadFile(absPath)
}

func extensionOf(relPath string) string {
	ext := filepath.Ext(relPath)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// trimToLimit caps chunks so that total+len(chunks) never exceeds
// ChunkLimit, truncating a single oversized file's chunk set at the exact
// boundary instead of admitting it whole (spec §4.7 step 7, §8). The
// returned bool reports whether the limit was reached or exceeded.
func trimToLimit(chunks []*chunk.Chunk, total int64) ([]*chunk.Chunk, bool) {
	remaining := ChunkLimit - total
	if remaining <= 0 {
		return nil, true
	}
	if int64(len(chunks)) > remaining {
		return chunks[:remaining], true
	}
	return chunks, len(chunks) == int(remaining)
}
