// Package sandbox provisions and supervises the per-session jail: the
// overlay filesystem, the memfd-sealed shell, the PTY-controlled launcher,
// the control socket pair, and the user-space network helper. Everything in
// here is Linux-specific by design.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/osaibot/osaibot/internal/logger"
)

// EnsureRun makes sure the per-identity container state under runRoot exists
// and returns the overlay root directory. When reinit is set, or the state is
// missing, the old mount tree is detached and a fresh tmpfs + overlay is
// built with jailRoot as the read-only lower layer. Existing state is reused
// untouched otherwise, which is what preserves user files across reconnects.
func EnsureRun(runRoot, jailRoot, idname string, reinit bool) (string, error) {
	run := filepath.Join(runRoot, idname)
	rootdir := filepath.Join(run, "root")

	_, statErr := os.Stat(run)
	exists := statErr == nil

	if reinit || !exists {
		if err := unix.Unmount(run, unix.MNT_DETACH); err != nil {
			logger.Debugf("no previous mount to detach at %s: %v", run, err)
		}
		if err := provision(run, rootdir, jailRoot); err != nil {
			// Best-effort rollback; the next reinit gets a clean slate.
			if uerr := unix.Unmount(run, unix.MNT_DETACH); uerr != nil {
				logger.Warnf("rollback unmount of %s failed: %v", run, uerr)
			}
			return "", err
		}
	}

	if _, err := os.Stat(rootdir); err != nil {
		return "", fmt.Errorf("sandbox: overlay root missing: %w", err)
	}
	return rootdir, nil
}

func provision(run, rootdir, jailRoot string) error {
	if err := os.Mkdir(run, 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("sandbox: create run dir: %w", err)
	}
	if err := unix.Mount("tmpfs", run, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("sandbox: mount tmpfs on %s: %w", run, err)
	}

	upper := filepath.Join(run, "upper")
	work := filepath.Join(run, "work")
	for _, dir := range []string{upper, work, rootdir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("sandbox: create %s: %w", dir, err)
		}
	}

	opts := OverlayOpts(jailRoot, upper, work)
	if err := unix.Mount("overlay", rootdir, "overlay", 0, opts); err != nil {
		return fmt.Errorf("sandbox: mount overlay on %s: %w", rootdir, err)
	}
	return nil
}

// OverlayOpts builds the overlayfs mount data string.
func OverlayOpts(lower, upper, work string) string {
	return fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lower, upper, work)
}
