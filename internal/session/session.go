package session

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/osaibot/osaibot/internal/config"
	"github.com/osaibot/osaibot/internal/logger"
	"github.com/osaibot/osaibot/internal/proto"
	"github.com/osaibot/osaibot/internal/sandbox"
	"github.com/osaibot/osaibot/internal/term"
	"github.com/osaibot/osaibot/internal/uploadfs"
)

// initTimeout bounds the INIT handshake and the descriptor exchange with the
// in-jail shell.
const initTimeout = time.Second

var idnameRe = regexp.MustCompile(`^[a-zA-Z0-9]{1,30}$`)

// Session is one live client connection and the sandboxed shell behind it.
type Session struct {
	ID  uuid.UUID
	cfg *config.Config

	conn   net.Conn
	br     *bufio.Reader
	writer *botWriter

	// Engine state, owned by the demux goroutine.
	mode         Mode
	pending      []byte
	snap         *term.Snapshot
	lastFlush    time.Time
	hasFlushWait bool
	now          func() time.Time

	idname  string
	rootdir string
	started time.Time
	modePub atomic.Int32

	shell      *sandbox.Shell
	shellPidfd int
	netnsFD    int
	slirp      *exec.Cmd
	slirpPidfd int

	ctlMu  sync.Mutex
	ptmMu  sync.Mutex
	writes *writeSet

	ctx    context.Context
	cancel context.CancelFunc

	killOnce sync.Once
	killErr  error
	killed   chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New prepares a session for conn. The bufio reader is shared across the
// restart loop so buffered client bytes survive a sandbox restart.
func New(conn net.Conn, br *bufio.Reader, cfg *config.Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:      uuid.New(),
		cfg:     cfg,
		conn:    conn,
		br:      br,
		writer:  newBotWriter(conn, minSendDelay),
		now:     time.Now,
		writes:  newWriteSet(),
		ctx:     ctx,
		cancel:  cancel,
		killed:  make(chan struct{}),
		stop:    make(chan struct{}),
		started: time.Now(),
	}
}

// Idname returns the identity the client bound this session to.
func (s *Session) Idname() string { return s.idname }

// Started returns the session start time.
func (s *Session) Started() time.Time { return s.started }

// Mode returns the current terminal state; safe from any goroutine.
func (s *Session) Mode() Mode { return Mode(s.modePub.Load()) }

func (s *Session) setMode(m Mode) {
	s.mode = m
	s.modePub.Store(int32(m))
}

func (s *Session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// kill resolves the session's fate exactly once. Everything that can fail —
// outbound writes, pidfd watches, the demux, the client loop — funnels here.
func (s *Session) kill(err error) {
	s.killOnce.Do(func() {
		s.killErr = err
		s.cancel()
		close(s.killed)
	})
}

func (s *Session) send(typ, payload string) error {
	return s.writer.Send(s.ctx, proto.BotMessage{Type: typ, Payload: payload})
}

// Run drives the session until the client disconnects, the sandbox dies, or
// something breaks. restart reports whether the dispatcher should start a
// fresh session on the same connection.
func (s *Session) Run() (restart bool, err error) {
	log := logger.WithField("session", s.ID.String())

	uploadfs.Register(s.ID.String(), s.uploadCallback)

	if err := s.handshake(); err != nil {
		uploadfs.Deregister(s.ID.String())
		return false, err
	}
	log.Info().Str("idname", s.idname).Msg("session starting")

	if err := s.launch(); err != nil {
		uploadfs.Deregister(s.ID.String())
		return false, err
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.runDemux(); err != nil {
			s.kill(err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.runClient(); err != nil {
			s.kill(err)
		}
	}()

	<-s.killed
	s.teardown()

	switch {
	case errors.Is(s.killErr, ErrRestart):
		log.Info().Msg("sandbox gone, restarting session")
		return true, nil
	case errors.Is(s.killErr, ErrClientClosed):
		log.Info().Msg("client closed")
		return false, nil
	default:
		return false, s.killErr
	}
}

// handshake reads the INIT line and provisions the overlay.
func (s *Session) handshake() error {
	_ = s.conn.SetReadDeadline(s.now().Add(initTimeout))
	line, err := s.br.ReadString('\n')
	_ = s.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("%w: handshake: %v", ErrClientClosed, err)
	}

	var msg proto.ClientMessage
	if err := unmarshalLine(line, &msg); err != nil || msg.Type != proto.TypeInit || !idnameRe.MatchString(msg.Idname) {
		return fmt.Errorf("%w: bad INIT", ErrClientClosed)
	}
	s.idname = msg.Idname

	rootdir, err := sandbox.EnsureRun(s.cfg.RunRoot, s.cfg.JailRoot, msg.Idname, msg.Reinit)
	if err != nil {
		return err
	}
	s.rootdir = rootdir
	return nil
}

// launch forks the sandbox, wires the descriptors, and starts the network
// helper.
func (s *Session) launch() (err error) {
	s.setMode(ModeBad)
	s.shellPidfd = -1
	s.netnsFD = -1
	s.slirpPidfd = -1

	shell, err := sandbox.StartShell(s.cfg.LauncherPath, s.cfg.ShellPath, s.rootdir, s.ID.String())
	if err != nil {
		return err
	}
	s.shell = shell
	defer func() {
		if err != nil {
			s.teardown()
		}
	}()

	s.watchPidfd(shell.Pidfd, "launcher")

	// The shell announces itself with two descriptors: its own pidfd, then
	// the sandbox's network namespace.
	_ = shell.Ctl.SetReadDeadline(s.now().Add(initTimeout))
	if s.shellPidfd, err = sandbox.RecvFD(shell.Ctl); err != nil {
		return fmt.Errorf("session: receive shell pidfd: %w", err)
	}
	if s.netnsFD, err = sandbox.RecvFD(shell.Ctl); err != nil {
		return fmt.Errorf("session: receive netns fd: %w", err)
	}
	_ = shell.Ctl.SetReadDeadline(time.Time{})

	slirp, slirpPidfd, err := sandbox.StartSlirp(s.netnsFD)
	if err != nil {
		return err
	}
	s.slirp = slirp
	s.slirpPidfd = slirpPidfd
	s.watchPidfd(slirpPidfd, "slirp4netns")

	return nil
}

// watchPidfd kills the session with a restart condition when the watched
// process exits.
func (s *Session) watchPidfd(pidfd int, name string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if sandbox.WaitExit(pidfd, s.stop) {
			logger.Debugf("session %s: %s exited", s.ID, name)
			s.kill(ErrRestart)
		}
	}()
}

// teardown releases every child and descriptor exactly once. Order matters:
// the upload callback goes first so the FUSE side cannot call into a dying
// session, then all blocked I/O is kicked loose, then children are
// signalled and descriptors closed. The overlay mount stays; user state
// survives reconnects.
func (s *Session) teardown() {
	uploadfs.Deregister(s.ID.String())

	s.kill(errors.New("session: teardown"))
	close(s.stop)
	s.writes.cancelAll()

	if s.shell != nil {
		now := time.Now()
		_ = s.shell.Ptm.SetWriteDeadline(now)
		_ = s.shell.Ctl.SetWriteDeadline(now)
		_ = s.shell.Ptm.Close()
		_ = s.shell.Ctl.Close()
	}
	_ = s.conn.SetReadDeadline(time.Now())
	_ = s.conn.SetWriteDeadline(time.Now())

	s.wg.Wait()
	_ = s.conn.SetReadDeadline(time.Time{})
	_ = s.conn.SetWriteDeadline(time.Time{})

	if s.shell != nil {
		sandbox.SendSignal(s.shell.Pidfd, unix.SIGKILL)
	}
	if s.shellPidfd >= 0 {
		sandbox.SendSignal(s.shellPidfd, unix.SIGKILL)
		_ = unix.Close(s.shellPidfd)
	}
	if s.slirpPidfd >= 0 {
		sandbox.SendSignal(s.slirpPidfd, unix.SIGTERM)
		_ = unix.Close(s.slirpPidfd)
	}
	if s.netnsFD >= 0 {
		_ = unix.Close(s.netnsFD)
	}
	if s.shell != nil {
		_ = unix.Close(s.shell.Pidfd)
		// Synchronous reap; losing the race to the global reaper is fine.
		_ = s.shell.Cmd.Wait()
	}
	if s.slirp != nil {
		go func(cmd *exec.Cmd) { _ = cmd.Wait() }(s.slirp)
	}
}

// uploadCallback runs on a FUSE-serving goroutine when an in-jail writer
// closes the upload file; it must not block the filesystem.
func (s *Session) uploadCallback(data []byte) {
	payload := base64.StdEncoding.EncodeToString(data)
	go func() {
		err := s.writer.Send(s.ctx, proto.BotMessage{Type: proto.TypeUpload, Payload: payload})
		if err != nil && s.ctx.Err() == nil {
			s.kill(err)
		}
	}()
}
