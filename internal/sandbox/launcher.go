package sandbox

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Descriptor numbers the launcher script sees for the two descriptors handed
// over via ExtraFiles: the jail end of the control socket and the sealed
// shell binary.
const (
	sockFdNum = 3
	exeFdNum  = 4
)

// Shell is one running sandbox launcher: the PTY master it is attached to,
// the host end of the control socket, and a pidfd for liveness and kill.
type Shell struct {
	Ptm   *os.File
	Ctl   *os.File
	Cmd   *exec.Cmd
	Pidfd int
}

// StartShell seals the shell binary into a memfd, creates the SEQPACKET
// control socket pair, and forks the launcher under a fresh PTY. The jail
// end of the socket and the memfd are closed in the parent before returning.
func StartShell(launcherPath, shellPath, rootdir, uploadUUID string) (*Shell, error) {
	exe, err := sealShell(shellPath)
	if err != nil {
		return nil, err
	}
	defer exe.Close()

	ctl, jail, err := controlPair()
	if err != nil {
		return nil, err
	}
	defer jail.Close()

	cmd := exec.Command(launcherPath)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SOCK_FD=%d", sockFdNum),
		fmt.Sprintf("EXE_FD=%d", exeFdNum),
		"ROOTDIR="+rootdir,
		"DISCORD_UPLOAD_UUID="+uploadUUID,
	)
	// ExtraFiles dups these to fds 3 and 4 in the child with close-on-exec
	// cleared; every other descriptor stays private to us.
	cmd.ExtraFiles = []*os.File{jail, exe}

	ReaperLock.Lock()
	ptm, err := pty.Start(cmd)
	if err != nil {
		ReaperLock.Unlock()
		ctl.Close()
		return nil, fmt.Errorf("sandbox: start launcher: %w", err)
	}
	pidfd, err := unix.PidfdOpen(cmd.Process.Pid, 0)
	ReaperLock.Unlock()
	if err != nil {
		_ = cmd.Process.Kill()
		ptm.Close()
		ctl.Close()
		return nil, fmt.Errorf("sandbox: pidfd_open launcher: %w", err)
	}

	return &Shell{Ptm: ptm, Ctl: ctl, Cmd: cmd, Pidfd: pidfd}, nil
}

// sealShell copies the host shell binary into an anonymous memory file. The
// jail only ever sees this sealed copy, never the on-disk path.
func sealShell(path string) (*os.File, error) {
	fd, err := unix.MemfdCreate("osaibot-bash", 0)
	if err != nil {
		return nil, fmt.Errorf("sandbox: memfd_create: %w", err)
	}
	mem := os.NewFile(uintptr(fd), "osaibot-bash")

	src, err := os.Open(path)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("sandbox: open shell binary: %w", err)
	}
	defer src.Close()

	if _, err := io.Copy(mem, src); err != nil {
		mem.Close()
		return nil, fmt.Errorf("sandbox: seal shell binary: %w", err)
	}
	return mem, nil
}

// controlPair creates the AF_UNIX SEQPACKET pair shared with the in-jail
// shell. Both ends are non-blocking; the host end integrates with the
// runtime poller through os.File.
func controlPair() (host, jail *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("sandbox: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "ctl"), os.NewFile(uintptr(fds[1]), "ctl-jail"), nil
}
