// Package term renders the full-screen snapshot sent to the client while an
// interactive program owns the terminal.
package term

import (
	"io"
	"strings"

	"github.com/hinshun/vt10x"
)

// Fixed sandbox terminal geometry.
const (
	Cols = 80
	Rows = 24
)

// Snapshot is a minimal terminal emulator over a fixed 80×24 grid. It is fed
// every byte the shell writes during an execution episode so that a later
// promotion to full-screen mode replays the complete command output. Query
// replies the emulator produces (cursor position reports and the like) are
// forwarded to the reply writer, which is the PTY master.
type Snapshot struct {
	vt vt10x.Terminal
}

// New creates a snapshot emulator. reply receives the bytes the emulated
// terminal writes back to the process.
func New(reply io.Writer) *Snapshot {
	return &Snapshot{
		vt: vt10x.New(vt10x.WithSize(Cols, Rows), vt10x.WithWriter(reply)),
	}
}

// Feed advances the emulator with raw PTY bytes. Invalid UTF-8 is replaced
// inside the emulator rather than dropped.
func (s *Snapshot) Feed(data []byte) {
	_, _ = s.vt.Write(data)
}

// Render returns the snapshot as text: a header line with a '|' marking the
// cursor column, then each screen row prefixed with '-' on the cursor row and
// ' ' elsewhere. Rows are right-trimmed.
func (s *Snapshot) Render() string {
	cur := s.vt.Cursor()

	var b strings.Builder
	for i := 0; i < cur.X+1; i++ {
		b.WriteByte(' ')
	}
	b.WriteString("|\n")

	for y := 0; y < Rows; y++ {
		if y == cur.Y {
			b.WriteByte('-')
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(s.row(y))
		b.WriteByte('\n')
	}
	return b.String()
}

// Cursor returns the current cursor position.
func (s *Snapshot) Cursor() (x, y int) {
	cur := s.vt.Cursor()
	return cur.X, cur.Y
}

func (s *Snapshot) row(y int) string {
	var b strings.Builder
	for x := 0; x < Cols; x++ {
		c := s.vt.Cell(x, y).Char
		if c == 0 {
			c = ' '
		}
		b.WriteRune(c)
	}
	return strings.TrimRight(b.String(), " ")
}
