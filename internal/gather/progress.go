package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const progressFile = ".ingested"

// progressTracker remembers which source files were fully imported so a
// rerun after a crash skips them.
type progressTracker struct {
	mu       sync.Mutex
	ingested map[string]struct{}
	writer   *bufio.Writer
	file     *os.File
}

// newProgressTracker loads dir/.ingested, creating it if needed.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{ingested: make(map[string]struct{})}

	path := filepath.Join(dir, progressFile)
	data, err := os.ReadFile(path)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			name := strings.TrimSpace(line)
			if name != "" {
				pt.ingested[name] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", progressFile, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	return pt, nil
}

func (p *progressTracker) IsIngested(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ingested[name]
	return ok
}

// MarkIngested appends name to the progress file and flushes it.
func (p *progressTracker) MarkIngested(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ingested[name]; ok {
		return nil
	}
	p.ingested[name] = struct{}{}
	if _, err := p.writer.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("writing to %s: %w", progressFile, err)
	}
	return p.writer.Flush()
}

// Close flushes and closes the progress file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
