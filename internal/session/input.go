package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/osaibot/osaibot/internal/proto"
)

// runClient reads newline-delimited JSON from the bot and dispatches it.
func (s *Session) runClient() error {
	for {
		line, err := s.br.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil {
			if s.stopped() || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return ErrClientClosed
		}
		if line == "" {
			return ErrClientClosed
		}

		var msg proto.ClientMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("session: bad client message: %w", err)
		}
		if err := s.dispatchClient(msg); err != nil {
			return err
		}
	}
}

func unmarshalLine(line string, msg *proto.ClientMessage) error {
	return json.Unmarshal([]byte(strings.TrimSpace(line)), msg)
}

func (s *Session) dispatchClient(msg proto.ClientMessage) error {
	switch msg.Type {
	case proto.TypeInput:
		switch s.Mode() {
		case ModePrompt:
			s.startWrite(&s.ctlMu, s.shell.Ctl, false, proto.EncodeInput(msg.Payload))
		case ModeExecDirect, ModeExecTermemu:
			// The PTY line discipline wants Enter as CR.
			payload := strings.ReplaceAll(msg.Payload, "\n", "\r")
			s.startWrite(&s.ptmMu, s.shell.Ptm, true, []byte(payload))
		}
		return nil

	case proto.TypeSignal:
		switch s.Mode() {
		case ModeExecDirect, ModeExecTermemu:
			s.startWrite(&s.ctlMu, s.shell.Ctl, true, proto.EncodeSignal(int32(msg.Signum)))
		}
		return nil

	default:
		return fmt.Errorf("session: unknown client message type %q", msg.Type)
	}
}

// startWrite performs one write to the PTY master or control socket on its
// own goroutine. The per-destination mutex serializes writes so a second
// write cannot disturb a first one still blocked mid-transfer.
func (s *Session) startWrite(mu *sync.Mutex, f *os.File, execScoped bool, p []byte) {
	ctx, done := s.writes.add(execScoped)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer done()

		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := f.Write(p); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil || s.stopped() {
				// Cancelled, not failed.
				return
			}
			s.kill(err)
		}
	}()
}

// cancelExecWrites drops every exec-scoped write: queued ones see their
// context cancelled, and an instantaneous write deadline kicks any writer
// already blocked inside the kernel.
func (s *Session) cancelExecWrites() {
	s.writes.cancelExec()

	now := time.Now()
	_ = s.shell.Ptm.SetWriteDeadline(now)
	_ = s.shell.Ctl.SetWriteDeadline(now)
	_ = s.shell.Ptm.SetWriteDeadline(time.Time{})
	_ = s.shell.Ctl.SetWriteDeadline(time.Time{})
}
