package sandbox

import (
	"golang.org/x/sys/unix"
)

// SendSignal delivers sig through a pidfd. A process that already exited is
// not an error; the caller is tearing things down anyway.
func SendSignal(pidfd int, sig unix.Signal) {
	_ = unix.PidfdSendSignal(pidfd, sig, nil, 0)
}

// WaitExit blocks until the pidfd becomes readable, which happens when the
// process exits. Returns false if stop closed first. Polling in short slices
// keeps teardown from hanging on a pidfd nobody will ever signal.
func WaitExit(pidfd int, stop <-chan struct{}) bool {
	for {
		select {
		case <-stop:
			return false
		default:
		}
		fds := []unix.PollFd{{Fd: int32(pidfd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 500)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n > 0 {
			return true
		}
	}
}
