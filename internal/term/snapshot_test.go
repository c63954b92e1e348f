package term

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderLines(t *testing.T, s *Snapshot) []string {
	t.Helper()
	out := s.Render()
	require.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 1+Rows)
	return lines
}

func TestSnapshotRenderPlainText(t *testing.T) {
	s := New(io.Discard)
	s.Feed([]byte("hello"))

	lines := renderLines(t, s)

	// Cursor sits after "hello": column 5, so the marker lands at offset 6.
	assert.Equal(t, strings.Repeat(" ", 6)+"|", lines[0])
	assert.Equal(t, "-hello", lines[1])
	for _, line := range lines[2:] {
		assert.Equal(t, " ", line)
	}
}

func TestSnapshotCursorRow(t *testing.T) {
	s := New(io.Discard)
	s.Feed([]byte("one\r\ntwo\r\nthree"))

	x, y := s.Cursor()
	assert.Equal(t, 5, x)
	assert.Equal(t, 2, y)

	lines := renderLines(t, s)
	assert.Equal(t, " one", lines[1])
	assert.Equal(t, " two", lines[2])
	assert.Equal(t, "-three", lines[3])
}

func TestSnapshotCursorAddressing(t *testing.T) {
	s := New(io.Discard)
	s.Feed([]byte("\x1b[10;20Hx"))

	lines := renderLines(t, s)

	// After writing one glyph at row 10 col 20 (1-based), the cursor is at
	// column index 20.
	assert.Equal(t, strings.Repeat(" ", 21)+"|", lines[0])
	assert.Equal(t, "-"+strings.Repeat(" ", 19)+"x", lines[10])
}

func TestSnapshotClearScreen(t *testing.T) {
	s := New(io.Discard)
	s.Feed([]byte("junk everywhere"))
	s.Feed([]byte("\x1b[2J\x1b[Hfresh"))

	lines := renderLines(t, s)
	assert.Equal(t, "-fresh", lines[1])
	for _, line := range lines[2:] {
		assert.Equal(t, " ", line)
	}
}

func TestSnapshotQueryReply(t *testing.T) {
	var reply bytes.Buffer
	s := New(&reply)

	// Device status report: the emulator answers with a cursor position
	// report, which must reach the reply writer (the PTY in production).
	s.Feed([]byte("\x1b[6n"))
	assert.NotEmpty(t, reply.Bytes())
}
