//go:build unix

package lockfile

import (
	"syscall"

	"github.com/ringo-is-a-color/lastcall/util/errors"
)

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	// EPERM means the process exists but belongs to another user
	return !errors.Is(err, syscall.ESRCH)
}
