package shutdown

import (
	"context"
)

// Action is a cleanup step run once during the drain.
type Action interface {
	Run(ctx context.Context) error
}

// Func adapts a plain function which can't fail.
type Func func()

func (f Func) Run(context.Context) error {
	f()
	return nil
}

// ErrFunc adapts a synchronous function which reports failure through its error.
type ErrFunc func(ctx context.Context) error

func (f ErrFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Async adapts a function which starts its cleanup in the background and returns a channel
// signalling completion. The drain waits until the channel yields a value or is closed.
// A nil channel means the work completed synchronously.
type Async func(ctx context.Context) <-chan error

func (f Async) Run(ctx context.Context) error {
	done := f(ctx)
	if done == nil {
		return nil
	}
	return <-done
}

// Closer adapts anything with a Close method, e.g. *sql.DB or net.Listener.
func Closer(c interface{ Close() error }) Action {
	return ErrFunc(func(context.Context) error {
		return c.Close()
	})
}
