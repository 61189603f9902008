package shutdown

import (
	"fmt"

	"github.com/ringo-is-a-color/lastcall/util/errors"
)

var (
	ErrNilAction = errors.New("the cleanup action is nil")
	ErrDraining  = errors.New("the coordinator is draining its cleanup actions")
	ErrDone      = errors.New("the coordinator has already drained its cleanup actions")
)

// RegistrationError is returned by Register when an action is not added to the stack.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("fail to register the cleanup action '%v': %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// ActionFailure is a cleanup action which returned an error or panicked during the drain.
type ActionFailure struct {
	Name string
	ID   uint64
	Err  error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("cleanup action '%v' failed: %v", e.Name, e.Err)
}

func (e *ActionFailure) Unwrap() error {
	return e.Err
}
