package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/ringo-is-a-color/lastcall/conf"
	"github.com/ringo-is-a-color/lastcall/echo"
	"github.com/ringo-is-a-color/lastcall/journal"
	"github.com/ringo-is-a-color/lastcall/metrics"
	"github.com/ringo-is-a-color/lastcall/shutdown"
	"github.com/ringo-is-a-color/lastcall/util/cli"
	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/lockfile"
	"github.com/ringo-is-a-color/lastcall/util/log"
	"github.com/ringo-is-a-color/lastcall/util/netutil"
)

func main() {
	args := cli.Parse()
	config, err := conf.Parse(args.ConfigFile)
	if err != nil {
		fmt.Println(err)
		return
	}
	log.SetVerbose(config.Misc.VerboseLog || args.Verbose)

	coordinator := shutdown.New(config.Shutdown.CoordinatorConfig())
	coordinator.Listen()

	// resources are released in the reverse order of the registrations below
	lock, err := lockfile.Acquire(config.LockFile, cli.AppName)
	if err != nil {
		log.Fatal("fail to acquire the lock file", err)
	}
	register(coordinator, "lock file", shutdown.ErrFunc(func(context.Context) error {
		return lock.Release()
	}))

	j, err := journal.Open(config.Journal.Path)
	if err != nil {
		log.Fatal("fail to open the journal", err)
	}
	register(coordinator, "journal", j.CleanupAction())
	runID, err := j.StartRun(context.Background())
	if err != nil {
		log.Fatal("fail to record the run in the journal", err)
	}
	coordinator.AddObserver(j)

	if config.Metrics != nil {
		m := metrics.New(coordinator)
		coordinator.AddObserver(m)
		mux := http.NewServeMux()
		mux.Handle(config.Metrics.Path, m.Handler())
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			err := netutil.ListenHTTPAndServe(ctx, config.Metrics.Addr(), mux)
			if err != nil {
				log.Fatal("fail to serve the metrics", err)
			}
		}()
		register(coordinator, "metrics server", shutdown.Func(cancel))
	}

	if config.Echo != nil {
		server := echo.NewServer(config.Echo.Addr(), config.Echo.Allow)
		ctx, cancel := context.WithCancel(context.Background())
		served := make(chan error, 1)
		go func() {
			err := server.ListenAndServe(ctx)
			served <- err
			if err != nil {
				log.Fatal("fail to start the echo server", err)
			}
		}()
		register(coordinator, "echo server", server.CleanupAction(cancel, served))
	}

	register(coordinator, "server listeners", shutdown.Func(func() {
		n := netutil.StopAllServerListeners()
		log.Debug("stop the server listeners", "count", n)
	}))

	log.Info(cli.AppName+" started", "run", runID, "pid", os.Getpid(), "cleanup-actions", coordinator.Len())
	select {}
}

func register(coordinator *shutdown.Coordinator, name string, action shutdown.Action) {
	_, err := coordinator.RegisterNamed(name, action)
	if err != nil {
		log.Fatal("fail to register the cleanup action", errors.WithStack(err), "name", name)
	}
}
