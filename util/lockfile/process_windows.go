package lockfile

import (
	"os"
)

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// FindProcess opens a handle to the process on Windows, which fails once it has exited
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
