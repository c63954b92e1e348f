// Package ansi classifies and strips the escape sequences an interactive
// shell emits on its PTY. The direct output path tolerates exactly the
// sequences that do not move the cursor: SGR color runs, bracketed paste
// toggles, and OSC strings. Anything else promotes the session to the
// full-screen renderer.
package ansi

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	esc = 0x1b
	bel = 0x07
)

// ErrNeedMore reports that the buffer ends inside an escape sequence that
// could still turn out to be recognizable. The undecided tail must be carried
// into the next read.
var ErrNeedMore = errors.New("ansi: incomplete escape sequence")

// CheckSGROSC inspects the escape sequence starting at d[i] (which must be an
// ESC byte). It returns ok=true and the index one past the sequence when the
// sequence is SGR, a bracketed-paste toggle, or an OSC string. ok=false means
// the sequence is definitively something else. ErrNeedMore is returned when
// the buffer ends before the sequence can be decided.
func CheckSGROSC(d []byte, i int) (ok bool, end int, err error) {
	if i+1 >= len(d) {
		return false, 0, ErrNeedMore
	}

	switch d[i+1] {
	case '[':
		// CSI. Bash toggles bracketed paste mode around every prompt;
		// treat it like SGR and swallow it.
		const paste = "?2004"
		matched := true
		for k := 0; k < len(paste); k++ {
			if i+2+k >= len(d) {
				return false, 0, ErrNeedMore
			}
			if d[i+2+k] != paste[k] {
				matched = false
				break
			}
		}
		if matched {
			if i+7 >= len(d) {
				return false, 0, ErrNeedMore
			}
			if c := d[i+7]; c == 'h' || c == 'l' {
				return true, i + 8, nil
			}
		}

		for j := i + 2; ; j++ {
			if j >= len(d) {
				return false, 0, ErrNeedMore
			}
			switch c := d[j]; {
			case c == 'm': // SGR terminator
				return true, j + 1, nil
			case c == ';' || (c >= '0' && c <= '9'):
				continue
			default:
				return false, 0, nil
			}
		}
	case ']':
		// OSC
		if i+2 >= len(d) {
			return false, 0, ErrNeedMore
		}
		switch d[i+2] {
		case 'P':
			// set palette: nn followed by rrggbb, 7 fixed bytes
			if i+8 >= len(d) {
				return false, 0, ErrNeedMore
			}
			return true, i + 9, nil
		case 'R':
			// reset palette
			return true, i + 3, nil
		}
		for j := i + 3; ; j++ {
			if j >= len(d) {
				return false, 0, ErrNeedMore
			}
			switch d[j] {
			case bel:
				return true, j + 1, nil
			case esc:
				if j+1 >= len(d) {
					return false, 0, ErrNeedMore
				}
				if d[j+1] == '\\' {
					return true, j + 2, nil
				}
			}
		}
	default:
		return false, 0, nil
	}
}

// TrimSGROSC removes every recognized SGR/OSC run from d and returns the
// result. In strict mode an unrecognized escape is an invariant violation
// (the caller has already classified the buffer); in lenient mode it is left
// in place. ErrNeedMore aborts the trim and returns d unchanged, mirroring
// the best-effort prompt cleanup.
func TrimSGROSC(d []byte, strict bool) ([]byte, error) {
	out := d
	from := 0
	for {
		rel := bytes.IndexByte(out[from:], esc)
		if rel < 0 {
			return out, nil
		}
		i := from + rel

		ok, end, err := CheckSGROSC(out, i)
		if err != nil {
			return d, err
		}
		if !ok {
			if strict {
				return d, fmt.Errorf("ansi: unexpected escape at %d in direct output", i)
			}
			from = i + 1
			continue
		}

		trimmed := make([]byte, 0, len(out)-(end-i))
		trimmed = append(trimmed, out[:i]...)
		trimmed = append(trimmed, out[end:]...)
		out = trimmed
		from = i
	}
}

// CleanPrompt strips escape sequences from prompt text on a best-effort
// basis: recognized SGR/OSC runs first, then C1 controls and CSI sequences,
// then any surviving ESC/CR/BS/DEL bytes. Complete OSC strings are removed
// whole by the first step. When that step gives up on an undecidable escape
// tail, OSC strings are not recognized as such: only their ESC ] and ESC \
// pairs are removed and the body text stays.
func CleanPrompt(p []byte) []byte {
	if trimmed, err := TrimSGROSC(p, false); err == nil {
		p = trimmed
	}

	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); {
		c := p[i]
		switch {
		case c == esc && i+1 < len(p) && p[i+1] == '[':
			if end, ok := csiEnd(p, i+2); ok {
				i = end
				continue
			}
			out = append(out, c)
			i++
		case c == esc && i+1 < len(p) && isC1Final(p[i+1]):
			i += 2
		case c == 0x9b:
			if end, ok := csiEnd(p, i+1); ok {
				i = end
				continue
			}
			out = append(out, c)
			i++
		case c >= 0x80 && c <= 0x9a, c >= 0x9c && c <= 0x9f:
			i++
		default:
			out = append(out, c)
			i++
		}
	}

	// Whatever is still unsupported gets deleted outright.
	cleaned := out[:0]
	for _, c := range out {
		switch c {
		case esc, '\r', '\b', 0x7f:
		default:
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}

// csiEnd consumes parameter bytes, intermediate bytes, and a final byte of a
// CSI sequence whose body starts at i. ok is false when no final byte is
// present, in which case the introducer is kept literal.
func csiEnd(p []byte, i int) (int, bool) {
	for i < len(p) && p[i] >= 0x30 && p[i] <= 0x3f {
		i++
	}
	for i < len(p) && p[i] >= 0x20 && p[i] <= 0x2f {
		i++
	}
	if i < len(p) && p[i] >= 0x40 && p[i] <= 0x7e {
		return i + 1, true
	}
	return 0, false
}

func isC1Final(c byte) bool {
	return (c >= '@' && c <= 'Z') || (c >= '\\' && c <= '_')
}
