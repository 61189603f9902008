package errors

import (
	"errors"
	"fmt"

	"github.com/mdobak/go-xerrors"
)

func New(msg string) error {
	return xerrors.New(msg)
}

func Newf(format string, a ...any) error {
	return xerrors.New(fmt.Sprintf(format, a...))
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.New(err)
}

func WithStack2[T any](t T, err error) (T, error) {
	return t, WithStack(err)
}

func Wrap(err error, msg string) error {
	return xerrors.New(err, msg)
}

func Wrapf(err error, format string, a ...any) error {
	return xerrors.New(err, fmt.Sprintf(format, a...))
}

// FromPanic turns a value recovered from a panic into an error carrying the stack of the
// recovering frame.
func FromPanic(recovered any) error {
	if err, ok := recovered.(error); ok {
		return xerrors.New(err, "panic")
	}
	return xerrors.New(fmt.Sprintf("panic: %v", recovered))
}

var Join = xerrors.Append

var Is = errors.Is

var As = errors.As
