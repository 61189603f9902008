package shutdown

import (
	"fmt"
	"os"
	"time"

	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

// UnknownExitCode is reported for drains started by the process-exit event, whose exit code
// isn't exposed to the termination handlers.
const UnknownExitCode = -1

// Reason describes the termination trigger which started a drain.
type Reason struct {
	// Signal is nil when the drain was started by the process-exit event.
	Signal os.Signal
	// Code is the exit code requested by the exit event.
	Code int
}

func (r Reason) IsSignal() bool {
	return r.Signal != nil
}

func (r Reason) String() string {
	if r.Signal != nil {
		return "signal " + osutil.SignalName(r.Signal)
	}
	if r.Code == UnknownExitCode {
		return "exit"
	}
	return fmt.Sprintf("exit(%d)", r.Code)
}

type ActionResult struct {
	Name string
	ID   uint64
	// Seq is the position in the drain, starting from 0 for the most recently registered action.
	Seq      int
	Duration time.Duration
	// Err is an *ActionFailure or nil.
	Err error
}

func (r ActionResult) Failed() bool {
	return r.Err != nil
}

type Report struct {
	Reason   Reason
	Started  time.Time
	Duration time.Duration
	Results  []ActionResult
}

func (r *Report) Failed() bool {
	for _, result := range r.Results {
		if result.Failed() {
			return true
		}
	}
	return false
}

// Err joins every action failure of the drain, nil if all succeeded.
func (r *Report) Err() error {
	var err error
	for _, result := range r.Results {
		if result.Failed() {
			err = errors.Join(err, result.Err)
		}
	}
	return err
}

func (r *Report) FailedActions() []string {
	var names []string
	for _, result := range r.Results {
		if result.Failed() {
			names = append(names, result.Name)
		}
	}
	return names
}

// Observer is notified from the drain goroutine, so its methods run serially with the actions.
type Observer interface {
	ActionFinished(result ActionResult)
	DrainFinished(report *Report)
}
