package session

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive probes the OS process table by sending the null signal.
//
// EPERM means the process exists but belongs to another user, so it counts
// as alive. Any unexpected error also counts as alive: arbitration must
// fail toward conflict rather than adopt a session whose owner might still
// be running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, unix.EPERM) {
		return true
	}
	if errors.Is(err, unix.ESRCH) {
		return false
	}
	return true
}
