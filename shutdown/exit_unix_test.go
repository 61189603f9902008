//go:build unix

package shutdown

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ringo-is-a-color/lastcall/util/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run the coordinator in a child process since they terminate it through the real
// exit path.

const helperScenarioEnv = "LASTCALL_SHUTDOWN_SCENARIO"

func TestHelperProcess(t *testing.T) {
	scenario := os.Getenv(helperScenarioEnv)
	if scenario == "" {
		t.Skip("only run as a child process")
	}
	runScenario(scenario)
	fmt.Println("the scenario didn't exit")
	os.Exit(100)
}

func printAction(name string) func() {
	return func() { fmt.Println("ran " + name) }
}

func runScenario(scenario string) {
	config := DefaultConfig()
	if scenario == "exit-event-watchdog" {
		config.DrainTimeout = 200 * time.Millisecond
		config.FailureExitCode = 9
	}
	coordinator := New(config)
	coordinator.Listen()

	switch scenario {
	case "exit-event":
		for _, name := range []string{"A", "B", "C"} {
			_, _ = coordinator.RegisterFunc(name, printAction(name))
		}
		osutil.Exit(3)
	case "exit-event-watchdog":
		_, _ = coordinator.RegisterFunc("hangs", func() { time.Sleep(time.Hour) })
		osutil.Exit(3)
	case "exit-event-during-signal":
		_, _ = coordinator.RegisterFunc("A", printAction("A"))
		_, _ = coordinator.RegisterFunc("B", func() {
			time.Sleep(300 * time.Millisecond)
			fmt.Println("ran B")
		})
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		for coordinator.State() == Idle {
			time.Sleep(time.Millisecond)
		}
		osutil.Exit(1)
	case "exit-event-inside-action":
		_, _ = coordinator.RegisterFunc("A", printAction("A"))
		_, _ = coordinator.RegisterFunc("B", func() { osutil.Exit(5) })
		osutil.Exit(3)
	case "coordinator-exit-inside-exit-event-drain":
		_, _ = coordinator.RegisterFunc("A", printAction("A"))
		_, _ = coordinator.RegisterFunc("B", func() { coordinator.Exit(6) })
		osutil.Exit(3)
	case "exit-event-inside-signal-drain":
		_, _ = coordinator.RegisterFunc("A", printAction("A"))
		_, _ = coordinator.RegisterFunc("B", func() { osutil.Exit(5) })
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		time.Sleep(time.Hour)
	}
}

func runHelperProcess(t *testing.T, scenario string) (string, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperScenarioEnv+"="+scenario)
	out, err := cmd.CombinedOutput()
	require.Nil(t, ctx.Err(), "the child process didn't exit:\n%s", out)

	var exitErr *exec.ExitError
	if stdErrors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode()
	}
	require.Nil(t, err)
	return string(out), 0
}

func assertRanInOrder(t *testing.T, output string, names ...string) {
	t.Helper()
	last := -1
	for _, name := range names {
		i := strings.Index(output, "ran "+name+"\n")
		if !assert.Greater(t, i, last, "'ran %v' is missing or out of order in:\n%s", name, output) {
			return
		}
		last = i
	}
}

func TestExitEventDrainsThenExitsWithItsCode(t *testing.T) {
	output, code := runHelperProcess(t, "exit-event")
	assert.Equal(t, 3, code)
	assertRanInOrder(t, output, "C", "B", "A")
}

func TestWatchdogForcesExitDuringExitEventDrain(t *testing.T) {
	start := time.Now()
	output, code := runHelperProcess(t, "exit-event-watchdog")
	assert.Equal(t, 9, code, output)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExitEventDuringSignalDrainWaitsForIt(t *testing.T) {
	output, code := runHelperProcess(t, "exit-event-during-signal")
	assert.Equal(t, 1, code)
	assertRanInOrder(t, output, "B", "A")
}

func TestExitEventInsideExitEventDrainExitsRightAway(t *testing.T) {
	output, code := runHelperProcess(t, "exit-event-inside-action")
	assert.Equal(t, 5, code)
	assert.NotContains(t, output, "ran A")
}

func TestCoordinatorExitInsideExitEventDrainExitsRightAway(t *testing.T) {
	output, code := runHelperProcess(t, "coordinator-exit-inside-exit-event-drain")
	assert.Equal(t, 6, code)
	assert.NotContains(t, output, "ran A")
}

func TestExitEventInsideSignalDrainExitsRightAway(t *testing.T) {
	output, code := runHelperProcess(t, "exit-event-inside-signal-drain")
	assert.Equal(t, 5, code)
	assert.NotContains(t, output, "ran A")
}
