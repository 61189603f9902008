package osutil

import (
	"os"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/tebeka/atexit"
)

// RegisterProgramTerminationHandler hooks f into the process-exit event. f runs when the
// program terminates through Exit, never when main simply returns.
func RegisterProgramTerminationHandler(f func()) {
	atexit.Register(f)
}

// exitingGoroutine is the goroutine running the termination handlers, 0 before any Exit.
var exitingGoroutine atomic.Uint64

// Exit runs the termination handlers once, then exits with code. Called again from a termination
// handler, it exits right away as the handlers can't be run twice. Called from any other
// goroutine, it blocks until the first caller exits the process.
func Exit(code int) {
	id := GoroutineID()
	if !exitingGoroutine.CompareAndSwap(0, id) {
		if exitingGoroutine.Load() == id {
			os.Exit(code)
		}
		select {}
	}
	atexit.Exit(code)
}

// ForceExit skips the termination handlers.
func ForceExit(code int) {
	os.Exit(code)
}

// ExitCodeForSignal follows the shell convention of 128 plus the signal number.
func ExitCodeForSignal(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}

// SignalByName accepts both the "SIGTERM" and "term" spellings.
func SignalByName(name string) (os.Signal, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig, ok := signalsByName[name]
	return sig, ok
}

func SignalName(sig os.Signal) string {
	for name, s := range signalsByName {
		if s == sig {
			return name
		}
	}
	return sig.String()
}
