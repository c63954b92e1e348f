// Package session implements the per-connection terminal mediation engine:
// the output state machine and flush scheduler, the PTY/control-socket
// demultiplexer, the inbound message dispatcher, and the lifecycle of the
// sandboxed shell backing one client.
package session

import "errors"

// Mode is the session's terminal state.
type Mode int32

const (
	// ModeBad covers pre-start and transient states; output is dropped.
	ModeBad Mode = iota
	// ModePrompt means the shell is at its interactive prompt.
	ModePrompt
	// ModeExecDirect streams command output as plain text chunks.
	ModeExecDirect
	// ModeExecTermemu renders command output through the 80×24 emulator.
	ModeExecTermemu
)

func (m Mode) String() string {
	switch m {
	case ModePrompt:
		return "prompt"
	case ModeExecDirect:
		return "exec-direct"
	case ModeExecTermemu:
		return "exec-termemu"
	default:
		return "bad"
	}
}

// ErrRestart reports that the sandbox side died or disconnected. The client
// connection survives; the dispatcher starts a fresh session against it.
var ErrRestart = errors.New("session: sandbox gone, restart")

// ErrClientClosed reports that the bot client went away or broke the
// handshake. The session ends and the connection is closed.
var ErrClientClosed = errors.New("session: client closed")
