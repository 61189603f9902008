package log

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mdobak/go-xerrors"
	"github.com/ringo-is-a-color/lastcall/util/osutil"
)

var verbose = atomic.Bool{}

func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

var Info = slog.Info

func InfoWithError(msg string, err error, args ...any) {
	slog.Info(msg, append(args, "err", err)...)
	if verbose.Load() {
		printStackTrace(err)
	}
}

var Warn = slog.Warn

func WarnWithError(msg string, err error, args ...any) {
	slog.Warn(msg, append(args, "err", err)...)
	printStackTrace(err)
}

var Error = slog.Error

// Fatal exits through osutil.Exit so the termination handlers still run.
func Fatal(msg string, err error, args ...any) {
	slog.Error(msg, append(args, "err", err)...)
	osutil.Exit(1)
}

func SetVerbose(b bool) {
	verbose.Store(b)
	if b {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}
}

func printStackTrace(err error) {
	// skip first stack trace which used in 'github.com/ringo-is-a-color/lastcall/util/errors' package
	stacktrace := xerrors.StackTrace(err)
	if len(stacktrace) > 1 {
		fmt.Print(stacktrace[1:])
	} else if len(stacktrace) == 1 {
		fmt.Print(stacktrace)
	}
}
