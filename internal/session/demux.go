package session

import (
	"fmt"
	"time"

	"github.com/osaibot/osaibot/internal/ansi"
	"github.com/osaibot/osaibot/internal/proto"
	"github.com/osaibot/osaibot/internal/term"
)

// flushDelay is the soft deadline for batching pending output.
const flushDelay = 500 * time.Millisecond

// ptmReadSize bounds one PTY master read.
const ptmReadSize = 1024

// ctlReadSize bounds one control packet; SEQPACKET reads return whole
// packets and prompt payloads are short.
const ctlReadSize = 64 * 1024

type ptmEvent struct {
	data []byte
	err  error
}

type ctlEvent struct {
	tag     byte
	payload []byte
	err     error
}

// ctlFirst decides whether a control packet outranks PTY bytes that became
// ready in the same slice. A prompt→exec transition must precede the echoed
// command line; an exec→prompt transition must let prior output through
// first; any other control packet wins.
func ctlFirst(mode Mode, tag byte) bool {
	if mode == ModePrompt && tag == proto.RespBegin {
		return true
	}
	if tag == proto.RespPrompt {
		return false
	}
	return true
}

// runDemux is the session's main loop: it fans in PTY bytes and control
// packets, applies the race tiebreaker, and drives the flush deadline.
func (s *Session) runDemux() error {
	ptmCh := make(chan ptmEvent)
	ctlCh := make(chan ctlEvent)

	// Unbuffered channels keep exactly one outstanding read per source: the
	// reader cannot start the next read before the loop consumed the event.
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for {
			buf := make([]byte, ptmReadSize)
			n, err := s.shell.Ptm.Read(buf)
			select {
			case ptmCh <- ptmEvent{data: buf[:n], err: err}:
			case <-s.stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		for {
			buf := make([]byte, ctlReadSize)
			n, err := s.shell.Ctl.Read(buf)
			ev := ctlEvent{err: err}
			if err == nil {
				if n == 0 {
					ev.err = ErrRestart
				} else {
					ev.tag, ev.payload, ev.err = proto.DecodeResponse(buf[:n])
				}
			}
			select {
			case ctlCh <- ev:
			case <-s.stop:
				return
			}
			if ev.err != nil {
				return
			}
		}
	}()

	s.lastFlush = s.now()
	s.hasFlushWait = false

	for {
		var timer *time.Timer
		var timerC <-chan time.Time
		hadWait := s.hasFlushWait
		if hadWait {
			d := s.lastFlush.Add(flushDelay).Sub(s.now())
			if d <= 0 {
				if err := s.handlePTM(nil, flushHitTimer); err != nil {
					return err
				}
				continue
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		var pe *ptmEvent
		var ce *ctlEvent
		select {
		case <-s.stop:
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev := <-ptmCh:
			pe = &ev
		case ev := <-ctlCh:
			ce = &ev
		case <-timerC:
			if err := s.handlePTM(nil, flushHitTimer); err != nil {
				return err
			}
			continue
		}
		if timer != nil {
			timer.Stop()
		}

		// Pick up the other source if it raced to readiness in the same
		// slice; the tiebreaker below decides who is dispatched first.
		if pe == nil {
			select {
			case ev := <-ptmCh:
				pe = &ev
			default:
			}
		} else {
			select {
			case ev := <-ctlCh:
				ce = &ev
			default:
			}
		}

		if !hadWait {
			// We may have been parked for a long time; restart the flush
			// clock so the next deadline isn't instantly expired.
			s.lastFlush = s.now()
		}

		var err error
		switch {
		case pe != nil && ce != nil:
			if ctlFirst(s.mode, ce.tag) {
				err = s.handleCtlEvent(*ce)
				if err == nil {
					err = s.handlePtmEvent(*pe)
				}
			} else {
				err = s.handlePtmEvent(*pe)
				if err == nil {
					err = s.handleCtlEvent(*ce)
				}
			}
		case pe != nil:
			err = s.handlePtmEvent(*pe)
		default:
			err = s.handleCtlEvent(*ce)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) handlePtmEvent(ev ptmEvent) error {
	if ev.err != nil || len(ev.data) == 0 {
		if s.stopped() {
			return nil
		}
		return ErrRestart
	}
	return s.handlePTM(ev.data, flushIfNecessary)
}

func (s *Session) handleCtlEvent(ev ctlEvent) error {
	if ev.err != nil {
		if s.stopped() {
			return nil
		}
		if ev.err == ErrRestart {
			return ev.err
		}
		return ErrRestart
	}

	switch ev.tag {
	case proto.RespPrompt:
		if err := s.drainForced(); err != nil {
			return err
		}
		s.setMode(ModePrompt)

		// Keystrokes queued for the finished command must not leak into
		// the prompt.
		s.cancelExecWrites()

		prompt := ansi.CleanPrompt(ev.payload)
		return s.send(proto.TypePrompt, string(prompt))

	case proto.RespBegin:
		s.setMode(ModeExecDirect)
		// Eager snapshot: if this command later turns out to be
		// full-screen, the emulator must have seen everything from byte
		// one.
		s.snap = term.New(ptmReply{s})
		return nil

	default:
		return fmt.Errorf("session: unknown control tag %#x", ev.tag)
	}
}

// ptmReply forwards terminal query replies from the emulator to the shell.
// Emulator output is advisory; a write error here surfaces through the
// demux's own PTY read instead.
type ptmReply struct {
	s *Session
}

func (w ptmReply) Write(p []byte) (int, error) {
	_, _ = w.s.shell.Ptm.Write(p)
	return len(p), nil
}
