package ansi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSGROSC(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
		end  int
		err  error
	}{
		{"sgr reset", "\x1b[0m", true, 4, nil},
		{"sgr multi param", "\x1b[1;32m", true, 7, nil},
		{"sgr no params", "\x1b[m", true, 3, nil},
		{"bracketed paste on", "\x1b[?2004h", true, 8, nil},
		{"bracketed paste off", "\x1b[?2004l", true, 8, nil},
		{"osc bel", "\x1b]0;title\x07", true, 10, nil},
		{"osc st", "\x1b]0;title\x1b\\", true, 11, nil},
		{"osc set palette", "\x1b]P1ff00ff", true, 9, nil},
		{"osc reset palette", "\x1b]R", true, 3, nil},
		{"cursor up is not sgr", "\x1b[A", false, 0, nil},
		{"erase display is not sgr", "\x1b[2J", false, 0, nil},
		{"private mode is not sgr", "\x1b[?25l", false, 0, nil},
		{"charset select is not sgr", "\x1b(B", false, 0, nil},
		{"bare esc", "\x1b", false, 0, ErrNeedMore},
		{"csi tail", "\x1b[", false, 0, ErrNeedMore},
		{"sgr tail", "\x1b[1;3", false, 0, ErrNeedMore},
		{"paste tail", "\x1b[?200", false, 0, ErrNeedMore},
		{"osc tail", "\x1b]0;tit", false, 0, ErrNeedMore},
		{"osc st tail", "\x1b]0;title\x1b", false, 0, ErrNeedMore},
		{"palette tail", "\x1b]P1ff0", false, 0, ErrNeedMore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, end, err := CheckSGROSC([]byte(tt.data), 0)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.end, end)
			}
		})
	}
}

func TestCheckSGROSCMidBuffer(t *testing.T) {
	data := []byte("hello\x1b[33mworld")
	ok, end, err := CheckSGROSC(data, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, end)
}

func TestTrimSGROSC(t *testing.T) {
	t.Run("strips color runs", func(t *testing.T) {
		out, err := TrimSGROSC([]byte("\x1b[32mgreen\x1b[0m and \x1b]0;t\x07plain"), true)
		require.NoError(t, err)
		assert.Equal(t, "green and plain", string(out))
	})

	t.Run("strict rejects cursor motion", func(t *testing.T) {
		_, err := TrimSGROSC([]byte("a\x1b[2Jb"), true)
		assert.Error(t, err)
	})

	t.Run("lenient skips unrecognized escapes", func(t *testing.T) {
		out, err := TrimSGROSC([]byte("a\x1b[2J\x1b[1mb"), false)
		require.NoError(t, err)
		assert.Equal(t, "a\x1b[2Jb", string(out))
	})

	t.Run("incomplete tail returns input unchanged", func(t *testing.T) {
		in := []byte("abc\x1b[3")
		out, err := TrimSGROSC(in, false)
		assert.ErrorIs(t, err, ErrNeedMore)
		assert.Equal(t, in, out)
	})

	t.Run("adjacent runs", func(t *testing.T) {
		out, err := TrimSGROSC([]byte("\x1b[1m\x1b[32mx"), true)
		require.NoError(t, err)
		assert.Equal(t, "x", string(out))
	})
}

// Feeding a split chunk and the concatenation must agree once the tail
// becomes decidable.
func TestTrimChunkEquivalence(t *testing.T) {
	whole := []byte("pre\x1b[1;31mred\x1b[0mpost")
	wantOut, err := TrimSGROSC(whole, true)
	require.NoError(t, err)

	for cut := 1; cut < len(whole); cut++ {
		a, b := whole[:cut], whole[cut:]

		_, err := TrimSGROSC(a, false)
		if err == nil {
			continue // first half decidable on its own; nothing carried
		}
		// Simulate the pending-buffer carry: the undecided tail plus the
		// next chunk must trim to the same result.
		joined := append(append([]byte{}, a...), b...)
		out, err := TrimSGROSC(joined, true)
		require.NoError(t, err)
		assert.Equal(t, string(wantOut), string(out), "cut at %d", cut)
	}
}

func TestCleanPrompt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "user@host:~$ ", "user@host:~$ "},
		{"sgr colors", "\x1b[01;32muser\x1b[0m$ ", "user$ "},
		{"cursor motion", "\x1b[2K$ ", "$ "},
		{"c1 pair", "\x1bE$ ", "$ "},
		{"raw csi byte", "\x9b2K$ ", "$ "},
		{"leftover controls", "a\rb\x08c\x7fd\x1be", "abcde"},
		{"osc title swallowed", "\x1b]0;host\x07$ ", "$ "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(CleanPrompt([]byte(tt.in))))
		})
	}
}
