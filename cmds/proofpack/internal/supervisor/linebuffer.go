package supervisor

import (
	"strings"
	"sync"
)

const DefaultLogCapacity = 50

// LineBuffer keeps the most recent lines of a process's merged output.
// Appends come from output readers while the control flow reads, so every
// method takes the lock.
type LineBuffer struct {
	mu       sync.Mutex
	capacity int
	lines    []string
	start    int
	total    int
}

func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LineBuffer{
		capacity: capacity,
		lines:    make([]string, 0, capacity),
	}
}

func (buffer *LineBuffer) Append(line string) {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	buffer.total++
	if len(buffer.lines) < buffer.capacity {
		buffer.lines = append(buffer.lines, line)
		return
	}
	buffer.lines[buffer.start] = line
	buffer.start = (buffer.start + 1) % buffer.capacity
}

// Lines returns the retained lines, oldest first.
func (buffer *LineBuffer) Lines() []string {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.orderedLocked()
}

// Last returns up to n of the newest lines, oldest first.
func (buffer *LineBuffer) Last(n int) []string {
	lines := buffer.Lines()
	if n < 0 {
		n = 0
	}
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (buffer *LineBuffer) Len() int {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return len(buffer.lines)
}

// Total counts every appended line, including evicted ones.
func (buffer *LineBuffer) Total() int {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.total
}

// Find returns the first retained line containing any of patterns, together
// with the pattern it matched.
func (buffer *LineBuffer) Find(patterns []string) (string, string, bool) {
	if len(patterns) == 0 {
		return "", "", false
	}
	for _, line := range buffer.Lines() {
		for _, pattern := range patterns {
			if pattern != "" && strings.Contains(line, pattern) {
				return pattern, line, true
			}
		}
	}
	return "", "", false
}

func (buffer *LineBuffer) orderedLocked() []string {
	ordered := make([]string, 0, len(buffer.lines))
	ordered = append(ordered, buffer.lines[buffer.start:]...)
	ordered = append(ordered, buffer.lines[:buffer.start]...)
	return ordered
}
