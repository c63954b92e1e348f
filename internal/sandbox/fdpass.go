package sandbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RecvFD receives one descriptor passed with SCM_RIGHTS over the control
// socket, accompanying a single payload byte. The read deadline set on ctl
// bounds the wait. The received descriptor is close-on-exec.
func RecvFD(ctl *os.File) (int, error) {
	sc, err := ctl.SyscallConn()
	if err != nil {
		return -1, err
	}

	recvd := -1
	var rerr error
	err = sc.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		oob := make([]byte, unix.CmsgSpace(4))
		_, oobn, _, _, err := unix.Recvmsg(int(fd), buf, oob, unix.MSG_CMSG_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EINTR {
			return false
		}
		if err != nil {
			rerr = err
			return true
		}

		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			rerr = fmt.Errorf("sandbox: parse control message: %w", err)
			return true
		}
		for _, m := range cmsgs {
			fds, err := unix.ParseUnixRights(&m)
			if err == nil && len(fds) > 0 {
				recvd = fds[0]
				return true
			}
		}
		rerr = fmt.Errorf("sandbox: no descriptor received")
		return true
	})
	if err != nil {
		return -1, err
	}
	if rerr != nil {
		return -1, rerr
	}
	return recvd, nil
}
