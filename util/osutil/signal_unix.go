//go:build unix

package osutil

import (
	"os"
	"syscall"
)

var signalsByName = map[string]os.Signal{
	"SIGINT":  syscall.SIGINT,
	"SIGTERM": syscall.SIGTERM,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
}

// TerminationSignals returns the signals which ask the process to end.
// SIGKILL is left out as it can't be caught.
func TerminationSignals() []os.Signal {
	// https://www.gnu.org/software/libc/manual/html_node/Termination-Signals.html
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGQUIT,
	}
}
