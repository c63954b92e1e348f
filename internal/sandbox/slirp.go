package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// SlirpArgs builds the slirp4netns argument list. The helper wants a
// namespace path rather than a descriptor, so the received netns fd is
// addressed through our own /proc entry.
func SlirpArgs(pid, netnsFD int) []string {
	return []string{
		"--configure",
		"--mtu=65520",
		"--disable-host-loopback",
		"--enable-sandbox",
		"--enable-seccomp",
		"--netns-type=path",
		fmt.Sprintf("/proc/%d/fd/%d", pid, netnsFD),
		"tap0",
	}
}

// StartSlirp launches the user-space network helper for the sandbox whose
// network namespace descriptor is netnsFD, returning the command and a pidfd
// for liveness and TERM delivery.
func StartSlirp(netnsFD int) (*exec.Cmd, int, error) {
	cmd := exec.Command("slirp4netns", SlirpArgs(os.Getpid(), netnsFD)...)
	cmd.Stderr = os.Stderr

	ReaperLock.Lock()
	defer ReaperLock.Unlock()

	if err := cmd.Start(); err != nil {
		return nil, -1, fmt.Errorf("sandbox: start slirp4netns: %w", err)
	}
	pidfd, err := unix.PidfdOpen(cmd.Process.Pid, 0)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, -1, fmt.Errorf("sandbox: pidfd_open slirp4netns: %w", err)
	}
	return cmd, pidfd, nil
}

// EnablePing widens ping_group_range so unprivileged ICMP sockets work
// inside the sandbox.
func EnablePing() error {
	return os.WriteFile("/proc/sys/net/ipv4/ping_group_range", []byte("0 65535"), 0)
}
