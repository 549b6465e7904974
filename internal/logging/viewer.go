package logging

import (
	"bufio"
	"fmt"
	"os"
)

// Tail prints the last n lines of path to w, or the whole file when n <= 0.
func Tail(path string, n int, w *bufio.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		_, err := w.ReadFrom(f)
		if err != nil {
			return err
		}
		return w.Flush()
	}

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}
