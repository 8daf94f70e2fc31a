package procmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	b := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		b.push(LogLine{Text: string(rune('a' + i)), Stream: Stdout})
	}

	lines := b.snapshot(0, StreamBoth)
	require.Len(t, lines, 3)
	assert.Equal(t, "c", lines[0].Text)
	assert.Equal(t, "d", lines[1].Text)
	assert.Equal(t, "e", lines[2].Text)
}

func TestRingBufferSnapshotEmpty(t *testing.T) {
	b := newRingBuffer(10)
	lines := b.snapshot(0, StreamBoth)
	assert.NotNil(t, lines)
	assert.Len(t, lines, 0)
}

func TestRingBufferStreamFilter(t *testing.T) {
	b := newRingBuffer(10)
	b.push(LogLine{Text: "out1", Stream: Stdout})
	b.push(LogLine{Text: "err1", Stream: Stderr})
	b.push(LogLine{Text: "out2", Stream: Stdout})

	out := b.snapshot(0, StreamStdout)
	require.Len(t, out, 2)
	assert.Equal(t, "out1", out[0].Text)
	assert.Equal(t, "out2", out[1].Text)

	errs := b.snapshot(0, StreamStderr)
	require.Len(t, errs, 1)
	assert.Equal(t, "err1", errs[0].Text)
}

func TestRingBufferMaxLinesTail(t *testing.T) {
	b := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		b.push(LogLine{Text: string(rune('a' + i)), Stream: Stdout})
	}
	lines := b.snapshot(2, StreamBoth)
	require.Len(t, lines, 2)
	assert.Equal(t, "d", lines[0].Text)
	assert.Equal(t, "e", lines[1].Text)
}

func TestRingBufferClear(t *testing.T) {
	b := newRingBuffer(3)
	b.push(LogLine{Text: "x", Stream: Stdout})
	b.clear()
	assert.Len(t, b.snapshot(0, StreamBoth), 0)
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	b := newRingBuffer(0)
	assert.Equal(t, DefaultBufferCapacity, b.capacity)
}
