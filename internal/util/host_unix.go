//go:build unix

package util

import (
	"golang.org/x/sys/unix"
)

// IsElevated reports whether the process runs as root.
func IsElevated() bool {
	return unix.Geteuid() == 0
}

// ProcessAlive reports whether a process with the given PID is running.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
