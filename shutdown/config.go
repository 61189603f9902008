package shutdown

import (
	"os"
	"time"

	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

type Config struct {
	// Signals subscribed by Listen. Defaults to osutil.TerminationSignals.
	Signals []os.Signal
	// ExitCode is used after a signal-triggered drain in which every action succeeded.
	ExitCode int
	// SignalExitCode uses 128 plus the signal number instead of ExitCode.
	SignalExitCode bool
	// MarkFailure makes the process exit with FailureExitCode when any action failed.
	MarkFailure     bool
	FailureExitCode int
	// DrainTimeout force-exits the process with FailureExitCode when a drain runs longer.
	// Zero disables it; actions are then expected to bound their own run time.
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Signals:         osutil.TerminationSignals(),
		ExitCode:        0,
		MarkFailure:     true,
		FailureExitCode: 1,
	}
}
