package sandbox

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// ReaperLock serializes stray-child reaping against PID-to-pidfd conversion.
// Anyone who spawns a child and needs its PID afterwards (pidfd_open, handing
// a PID to an external tool) must hold this lock across spawn → pidfd_open so
// the PID cannot be reaped and recycled in between.
var ReaperLock sync.Mutex

var reaperOnce sync.Once

// StartReaper installs the process-wide SIGCHLD handler that reaps any stray
// children. Exited children we still hold pidfds for remain signalable; the
// launcher's synchronous Wait at session teardown tolerates having lost the
// race to this handler.
func StartReaper() {
	reaperOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, unix.SIGCHLD)
		go func() {
			for range ch {
				ReaperLock.Lock()
				for {
					var ws unix.WaitStatus
					pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
					if err != nil || pid <= 0 {
						break
					}
				}
				ReaperLock.Unlock()
			}
		}()
	})
}
