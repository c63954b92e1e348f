package session

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osaibot/osaibot/internal/proto"
	"github.com/osaibot/osaibot/internal/sandbox"
)

func TestCtlFirst(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		tag  byte
		want bool
	}{
		{"prompt to exec outranks echoed input", ModePrompt, proto.RespBegin, true},
		{"exec to prompt yields to pending output", ModeExecDirect, proto.RespPrompt, false},
		{"prompt packet yields even from termemu", ModeExecTermemu, proto.RespPrompt, false},
		{"begin outside prompt still wins", ModeExecDirect, proto.RespBegin, true},
		{"misc packet wins", ModeBad, 0x7f, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ctlFirst(tt.mode, tt.tag))
		})
	}
}

// withFakeShell attaches pipe-backed PTY and control descriptors so control
// handling can exercise write cancellation and emulator replies.
func withFakeShell(t *testing.T, s *Session) (ptmPeer *os.File) {
	t.Helper()
	ptmR, ptmW, err := os.Pipe()
	require.NoError(t, err)
	ctlR, ctlW, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		ptmR.Close()
		ptmW.Close()
		ctlR.Close()
		ctlW.Close()
	})
	s.shell = &sandbox.Shell{Ptm: ptmW, Ctl: ctlW}
	return ptmR
}

func TestRespBeginEntersDirectMode(t *testing.T) {
	s, _ := newEngine(t)
	withFakeShell(t, s)
	s.setMode(ModePrompt)

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))

	assert.Equal(t, ModeExecDirect, s.mode)
	assert.NotNil(t, s.snap)
}

func TestRespPromptDrainsAndCleans(t *testing.T) {
	s, buf := newEngine(t)
	withFakeShell(t, s)

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))
	require.NoError(t, s.handlePTM([]byte("output tail"), flushIfNecessary))

	prompt := []byte("\x1b[01;32muser@sandbox\x1b[0m:~$ ")
	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespPrompt, payload: prompt}))

	assert.Equal(t, ModePrompt, s.mode)
	msgs := sentMessages(t, buf)
	require.Len(t, msgs, 2)
	assert.Equal(t, proto.TypeDirect, msgs[0].Type)
	assert.Equal(t, "output tail", msgs[0].Payload)
	assert.Equal(t, proto.TypePrompt, msgs[1].Type)
	assert.Equal(t, "user@sandbox:~$ ", msgs[1].Payload)
}

func TestRespPromptAfterDisplay(t *testing.T) {
	s, buf := newEngine(t)
	withFakeShell(t, s)

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))
	require.NoError(t, s.handlePTM([]byte("\x1b[2Jfull screen"), flushIfNecessary))
	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespPrompt, payload: []byte("$ ")}))

	msgs := sentMessages(t, buf)
	require.Len(t, msgs, 2)
	assert.Equal(t, proto.TypeDisplay, msgs[0].Type)
	assert.Equal(t, proto.TypePrompt, msgs[1].Type)
}

// A full-screen episode must not poison the next one: BEGIN re-creates the
// snapshot and direct mode resumes.
func TestPromotionResetsPerEpisode(t *testing.T) {
	s, buf := newEngine(t)
	withFakeShell(t, s)

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))
	require.NoError(t, s.handlePTM([]byte("\x1b[Atop"), flushHitTimer))
	require.Equal(t, ModeExecTermemu, s.mode)
	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespPrompt, payload: []byte("$ ")}))

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))
	require.Equal(t, ModeExecDirect, s.mode)
	require.NoError(t, s.handlePTM([]byte("plain\n"), flushHitTimer))

	msgs := sentMessages(t, buf)
	require.Len(t, msgs, 4)
	assert.Equal(t, proto.TypeDisplay, msgs[0].Type)
	assert.Equal(t, proto.TypeDisplay, msgs[1].Type) // forced drain re-renders
	assert.Equal(t, proto.TypePrompt, msgs[2].Type)
	assert.Equal(t, proto.TypeDirect, msgs[3].Type)
	assert.Equal(t, "plain\n", msgs[3].Payload)
}

func TestUnknownControlTagIsFatal(t *testing.T) {
	s, _ := newEngine(t)
	withFakeShell(t, s)

	err := s.handleCtlEvent(ctlEvent{tag: 0x42})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRestart)
}

func TestControlEOFRequestsRestart(t *testing.T) {
	s, _ := newEngine(t)
	withFakeShell(t, s)

	err := s.handleCtlEvent(ctlEvent{err: ErrRestart})
	assert.ErrorIs(t, err, ErrRestart)

	err = s.handlePtmEvent(ptmEvent{data: nil})
	assert.ErrorIs(t, err, ErrRestart)
}

func TestEmulatorReplyReachesPTY(t *testing.T) {
	s, _ := newEngine(t)
	ptmPeer := withFakeShell(t, s)

	require.NoError(t, s.handleCtlEvent(ctlEvent{tag: proto.RespBegin}))
	// A status query makes the emulator answer through the PTY master.
	require.NoError(t, s.handlePTM([]byte("\x1b[6n"), flushIfNecessary))

	require.NoError(t, ptmPeer.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 32)
	n, err := ptmPeer.Read(reply)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(reply[:n], []byte("\x1b[")))
}
