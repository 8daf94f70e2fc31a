package procmgr

import (
	"sync"
	"time"
)

// Stream tags a LogLine's origin.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// LogLine is the (timestamp, stream, text) triple of spec.md §3. Timestamps
// are stamped by the capture task at line-assembly time, not parsed from
// content (spec.md §4.1 design rationale).
type LogLine struct {
	Time   time.Time `json:"time"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
}

// ringBuffer is a bounded FIFO of log lines with a configurable capacity.
// Generalizes the teacher's fixed-array logBuffer (processmgr/log_buffer.go,
// capacity 500) to the per-entry configurable capacity spec.md §3 requires
// (buffer_capacity, default 10000); backed by a slice used as a circular
// buffer instead of a compile-time array so capacity can vary per entry.
type ringBuffer struct {
	mu       sync.RWMutex
	entries  []LogLine
	capacity int
	head     int // next write position
	size     int // current number of entries
	full     bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &ringBuffer{
		entries:  make([]LogLine, capacity),
		capacity: capacity,
	}
}

// push appends a line, evicting the oldest entry first if full. Cannot fail.
func (b *ringBuffer) push(line LogLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = line
	b.head = (b.head + 1) % b.capacity

	if b.full {
		return
	}
	b.size++
	if b.size == b.capacity {
		b.full = true
	}
}

// snapshot returns a point-in-time copy of up to maxLines of the buffer's
// content, oldest-of-the-snapshot first, optionally filtered to one stream.
// maxLines <= 0 means "all available". A stream filter with no matches
// returns an empty (non-nil) slice.
func (b *ringBuffer) snapshot(maxLines int, filter StreamFilter) []LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []LogLine{}
	}

	// oldest index in the ring
	var oldest int
	if b.full {
		oldest = b.head
	}

	all := make([]LogLine, 0, b.size)
	for i := 0; i < b.size; i++ {
		idx := (oldest + i) % b.capacity
		all = append(all, b.entries[idx])
	}

	if filter != StreamBoth {
		want := Stdout
		if filter == StreamStderr {
			want = Stderr
		}
		filtered := all[:0:0]
		for _, l := range all {
			if l.Stream == want {
				filtered = append(filtered, l)
			}
		}
		all = filtered
	}

	if maxLines > 0 && len(all) > maxLines {
		all = all[len(all)-maxLines:]
	}

	return all
}

// clear discards all lines.
func (b *ringBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
	b.full = false
}
