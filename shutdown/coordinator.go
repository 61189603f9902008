package shutdown

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/log"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

type State int32

const (
	Idle State = iota
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

type Registration struct {
	ID     uint64
	Name   string
	action Action
}

// Coordinator keeps a stack of cleanup actions and runs them once, most recently registered
// first, when the first termination trigger arrives.
type Coordinator struct {
	config    Config
	exit      func(code int)
	forceExit func(code int)

	mu        sync.Mutex
	state     State
	actions   []*Registration
	nextID    uint64
	observers []Observer
	report    *Report

	fired          atomic.Bool
	drainGoroutine atomic.Uint64
	done           chan struct{}
	listenOnce     sync.Once
	signals        chan os.Signal
	stop           chan struct{}
	stopOnce       sync.Once
}

func New(config Config) *Coordinator {
	return newCoordinator(config, osutil.Exit, osutil.ForceExit)
}

// NewWithExit uses exit to terminate the process, both after a signal-triggered drain and when
// the drain has to be cut short.
func NewWithExit(config Config, exit func(code int)) *Coordinator {
	return newCoordinator(config, exit, exit)
}

func newCoordinator(config Config, exit, forceExit func(code int)) *Coordinator {
	if config.Signals == nil {
		config.Signals = osutil.TerminationSignals()
	}
	return &Coordinator{
		config:    config,
		exit:      exit,
		forceExit: forceExit,
		done:      make(chan struct{}),
		signals:   make(chan os.Signal, 1),
		stop:      make(chan struct{}),
	}
}

var defaultCoordinator = sync.OnceValue(func() *Coordinator {
	return New(DefaultConfig())
})

// Default returns the process-wide coordinator for code without a handle to one.
// It doesn't listen for triggers until Listen is called on it.
func Default() *Coordinator {
	return defaultCoordinator()
}

func (c *Coordinator) Register(action Action) (*Registration, error) {
	return c.RegisterNamed("", action)
}

// RegisterNamed pushes action on top of the stack. Actions registered once a drain has
// started are rejected rather than run out of order.
func (c *Coordinator) RegisterNamed(name string, action Action) (*Registration, error) {
	if isNilAction(action) {
		return nil, &RegistrationError{Name: name, Err: ErrNilAction}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Draining:
		return nil, &RegistrationError{Name: name, Err: ErrDraining}
	case Done:
		return nil, &RegistrationError{Name: name, Err: ErrDone}
	}

	c.nextID++
	if name == "" {
		name = "action-" + strconv.FormatUint(c.nextID, 10)
	}
	registration := &Registration{ID: c.nextID, Name: name, action: action}
	c.actions = append(c.actions, registration)
	return registration, nil
}

// isNilAction also catches typed nils, e.g. Func(nil), which would only panic in the drain.
func isNilAction(action Action) bool {
	if action == nil {
		return true
	}
	v := reflect.ValueOf(action)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

func (c *Coordinator) RegisterFunc(name string, f func()) (*Registration, error) {
	if f == nil {
		return c.RegisterNamed(name, nil)
	}
	return c.RegisterNamed(name, Func(f))
}

func (c *Coordinator) AddObserver(observer Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, observer)
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len is the number of actions waiting on the stack.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

// Done is closed once the drain has run every action.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Report is nil until Done is closed.
func (c *Coordinator) Report() *Report {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.report
	default:
		return nil
	}
}

// Listen subscribes to the termination signals and to the process-exit event. Only the first
// call has an effect.
func (c *Coordinator) Listen() {
	c.listenOnce.Do(func() {
		osutil.RegisterProgramTerminationHandler(c.onProgramExit)
		if len(c.config.Signals) > 0 {
			signal.Notify(c.signals, c.config.Signals...)
		}
		go c.listenSignals()
	})
}

// Stop unsubscribes from the termination signals. The exit event hook stays, it's idempotent.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		signal.Stop(c.signals)
		close(c.stop)
	})
}

func (c *Coordinator) listenSignals() {
	for {
		select {
		case sig := <-c.signals:
			reason := Reason{Signal: sig}
			if !c.claim(reason) {
				continue
			}
			// keep receiving so the later signals are reported as ignored
			go c.drainAndExit(reason)
		case <-c.stop:
			return
		}
	}
}

// onProgramExit returns only once the drain finished, so the process can't exit in the middle
// of a drain started by a signal.
func (c *Coordinator) onProgramExit() {
	if c.Trigger(Reason{Code: UnknownExitCode}) {
		return
	}
	if c.drainingOnCurrentGoroutine() {
		// an action asked to exit, waiting would never end
		return
	}
	<-c.done
}

// Trigger runs the drain on the calling goroutine if no trigger fired before and reports
// whether it did so. It doesn't terminate the process.
func (c *Coordinator) Trigger(reason Reason) bool {
	if !c.claim(reason) {
		return false
	}
	c.drain(reason)
	return true
}

// Exit drains and terminates the process with code, or with FailureExitCode when an action
// failed and MarkFailure is set. If another trigger already started the drain, it waits for the
// drain before exiting with code. Called from inside an action, it exits right away without
// running the remaining actions.
func (c *Coordinator) Exit(code int) {
	reason := Reason{Code: code}
	if c.Trigger(reason) {
		c.exit(c.exitCode(reason))
		return
	}
	if c.drainingOnCurrentGoroutine() {
		log.Warn("exit in the middle of the cleanup actions", "code", code)
		c.forceExit(code)
		return
	}
	<-c.done
	c.exit(code)
}

func (c *Coordinator) drainingOnCurrentGoroutine() bool {
	return c.State() == Draining && c.drainGoroutine.Load() == osutil.GoroutineID()
}

func (c *Coordinator) claim(reason Reason) bool {
	if c.fired.CompareAndSwap(false, true) {
		return true
	}
	log.Debug("ignore the termination trigger as the cleanup actions are already drained or draining", "reason", reason)
	return false
}

func (c *Coordinator) drainAndExit(reason Reason) {
	c.drain(reason)
	code := c.exitCode(reason)
	log.Info("exit after running the cleanup actions", "reason", reason, "code", code)
	c.exit(code)
}

func (c *Coordinator) exitCode(reason Reason) int {
	report := c.Report()
	if c.config.MarkFailure && report != nil && report.Failed() {
		return c.config.FailureExitCode
	}
	if reason.IsSignal() {
		if c.config.SignalExitCode {
			return osutil.ExitCodeForSignal(reason.Signal)
		}
		return c.config.ExitCode
	}
	return reason.Code
}

func (c *Coordinator) drain(reason Reason) {
	c.drainGoroutine.Store(osutil.GoroutineID())
	c.mu.Lock()
	c.state = Draining
	actions := c.actions
	c.actions = nil
	observers := c.observers
	c.mu.Unlock()

	log.Info("run the cleanup actions", "reason", reason, "count", len(actions))
	ctx := withReason(context.Background(), reason)
	if c.config.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DrainTimeout)
		defer cancel()
		watchdog := time.AfterFunc(c.config.DrainTimeout, func() {
			log.Error("the cleanup actions didn't finish in time, force to exit", "timeout", c.config.DrainTimeout)
			c.forceExit(c.config.FailureExitCode)
		})
		defer watchdog.Stop()
	}

	report := &Report{Reason: reason, Started: time.Now(), Results: make([]ActionResult, 0, len(actions))}
	for i := len(actions) - 1; i >= 0; i-- {
		result := runAction(ctx, actions[i])
		result.Seq = len(actions) - 1 - i
		report.Results = append(report.Results, result)
		if result.Failed() {
			log.WarnWithError("cleanup action failed", result.Err, "name", result.Name)
		} else {
			log.Debug("cleanup action finished", "name", result.Name, "duration", result.Duration)
		}
		for _, observer := range observers {
			observer.ActionFinished(result)
		}
	}
	report.Duration = time.Since(report.Started)

	c.mu.Lock()
	c.state = Done
	c.report = report
	c.mu.Unlock()
	for _, observer := range observers {
		observer.DrainFinished(report)
	}
	close(c.done)
}

func runAction(ctx context.Context, registration *Registration) (result ActionResult) {
	result = ActionResult{Name: registration.Name, ID: registration.ID}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Err = &ActionFailure{Name: registration.Name, ID: registration.ID, Err: errors.FromPanic(r)}
		}
	}()

	err := registration.action.Run(ctx)
	if err != nil {
		result.Err = &ActionFailure{Name: registration.Name, ID: registration.ID, Err: err}
	}
	return result
}
