package process

import (
	"bytes"
	"sync"
)

const maxPartialLine = 64 * 1024

// LogBuffer is an io.Writer that keeps the last N lines written to it.
type LogBuffer struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

// NewLogBuffer creates a buffer retaining up to size lines.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{lines: make([]string, size)}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := append(b.partial, data[:i]...)
		b.push(string(bytes.TrimRight(line, "\r")))
		b.partial = b.partial[:0]
		data = data[i+1:]
	}

	b.partial = append(b.partial, data...)
	if len(b.partial) > maxPartialLine {
		b.push(string(b.partial))
		b.partial = b.partial[:0]
	}
	return len(p), nil
}

func (b *LogBuffer) push(line string) {
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

// Lines returns the retained lines, oldest first, including an unterminated
// trailing line.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	if b.full {
		out = append(out, b.lines[b.next:]...)
	}
	out = append(out, b.lines[:b.next]...)
	if len(b.partial) > 0 {
		out = append(out, string(b.partial))
	}
	return out
}
