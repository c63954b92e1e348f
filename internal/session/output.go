package session

import (
	"bytes"
	"fmt"

	"github.com/osaibot/osaibot/internal/ansi"
	"github.com/osaibot/osaibot/internal/proto"
)

type flushType int

const (
	// flushIfNecessary only emits when a hard condition (size cap) forces it.
	flushIfNecessary flushType = iota
	// flushHitTimer emits at least something, stopping at the last newline.
	flushHitTimer
	// flushForced emits everything, including a partial final line; trailing
	// CRs and an undecidable escape tail still stay pending.
	flushForced
)

// directLimit caps one DIRECT payload; the chat platform truncates beyond it.
const directLimit = 2000

// handlePTM runs PTY bytes through the output state machine. In execution
// modes every byte also feeds the snapshot emulator first, whether or not the
// direct path ends up keeping it — a later promotion to full-screen mode
// needs the complete replay.
func (s *Session) handlePTM(data []byte, ft flushType) error {
	data = bytes.ReplaceAll(data, []byte{0}, nil)
	if len(data) > 0 && s.snap != nil {
		s.snap.Feed(data)
	}
	flushWait := false

loop:
	for {
		merged := make([]byte, 0, len(s.pending)+len(data))
		merged = append(merged, s.pending...)
		merged = append(merged, data...)
		data, s.pending = merged, nil

		switch s.mode {
		case ModeExecDirect:
			// An erase character or any escape that is not SGR/OSC means
			// the program is using real terminal features: switch to the
			// emulator. Undecidable escape tails are held back in pending
			// rather than guessed at.
			shouldSwitch := bytes.IndexByte(data, '\b') >= 0 || bytes.IndexByte(data, 0x7f) >= 0
			if !shouldSwitch {
				last := -1
				for {
					rel := bytes.IndexByte(data[last+1:], 0x1b)
					if rel < 0 {
						break
					}
					i := last + 1 + rel
					ok, end, err := ansi.CheckSGROSC(data, i)
					if err != nil {
						s.pending = prepend(data[i:], s.pending)
						data = data[:i]
						break
					}
					if ok {
						last = end - 1
						continue
					}
					shouldSwitch = true
					break
				}
			}
			if shouldSwitch {
				// The snapshot already saw these bytes.
				data = nil
				s.setMode(ModeExecTermemu)
				continue
			}

			trimmed, err := ansi.TrimSGROSC(data, true)
			if err != nil {
				return err
			}
			data = trimmed

			for len(data) > 0 && data[len(data)-1] == '\r' {
				s.pending = prepend(data[len(data)-1:], s.pending)
				data = data[:len(data)-1]
			}
			data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

			hasPendingFromLimit := false
			if len(data) > 0 {
				shouldFlush := ft != flushIfNecessary

				if len(data) > directLimit {
					shouldFlush = true
					s.pending = prepend(data[directLimit:], s.pending)
					data = data[:directLimit]
					hasPendingFromLimit = true
				}

				// Unless forced, stop at the last linebreak so words
				// aren't split mid-line across messages.
				if ft != flushForced {
					if nl := bytes.LastIndexByte(data, '\n'); nl >= 0 && nl != len(data)-1 {
						s.pending = prepend(data[nl+1:], s.pending)
						data = data[:nl+1]
						flushWait = true
					}
				}

				if shouldFlush {
					if err := s.send(proto.TypeDirect, string(data)); err != nil {
						return err
					}
					s.lastFlush = s.now()
				} else {
					s.pending = prepend(data, s.pending)
					data = nil
					flushWait = true
				}
			}

			if hasPendingFromLimit {
				data = nil
				continue
			}
			break loop

		case ModeExecTermemu:
			if ft != flushIfNecessary {
				if err := s.send(proto.TypeDisplay, s.snap.Render()); err != nil {
					return err
				}
				s.lastFlush = s.now()
			} else {
				flushWait = true
			}
			break loop

		default:
			// PROMPT and BAD discard terminal output.
			s.pending = nil
			break loop
		}
	}

	s.hasFlushWait = flushWait
	return nil
}

// drainForced flushes everything left in the engine; used on return to
// prompt, after which nothing may still be waiting. Bytes a forced flush
// cannot emit (held-back trailing CRs, an undecidable escape tail) are
// discarded so the pending buffer is empty.
func (s *Session) drainForced() error {
	if err := s.handlePTM(nil, flushForced); err != nil {
		return err
	}
	if s.hasFlushWait {
		return fmt.Errorf("session: output still pending after forced drain")
	}
	s.pending = nil
	return nil
}

// prepend returns head+tail in a fresh slice; head is copied so later
// truncation of its backing array cannot alias.
func prepend(head, tail []byte) []byte {
	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	out = append(out, tail...)
	return out
}
