package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/tend/pkg/assert"
	"github.com/grovetools/tend/pkg/harness"
)

// DaemonLifecycleScenario starts the daemon, checks status and that a
// second instance is refused.
func DaemonLifecycleScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "autoreg-daemon-lifecycle",
		Tags: []string{"daemon"},
		Steps: []harness.Step{
			withDaemon("lifecycle"),
			harness.NewStep("Status reports running", func(ctx *harness.Context) error {
				stdout, _, code := autoreg(ctx, "status")
				if err := assert.Equal(0, code, "status should succeed"); err != nil {
					return err
				}
				return assert.Contains(stdout, "Running", "daemon should be running")
			}),
			harness.NewStep("Second serve is refused", func(ctx *harness.Context) error {
				_, stderr, code := autoreg(ctx, "serve", "--listen", "127.0.0.1:0")
				if code == 0 {
					return fmt.Errorf("second daemon started")
				}
				return assert.Contains(stderr, "already running", "lock should be held")
			}),
			stopDaemonStep(),
		},
	}
}

// SessionRunScenario runs operations through the CLI and checks history.
func SessionRunScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "autoreg-session-run",
		Tags: []string{"daemon", "sessions"},
		Steps: []harness.Step{
			withDaemon("sessions"),
			harness.NewStep("Successful operation streams output", func(ctx *harness.Context) error {
				stdout, _, code := autoreg(ctx, "start", "echo")
				if err := assert.Equal(0, code, "echo should succeed"); err != nil {
					return err
				}
				if err := assert.Contains(stdout, "processing record 2", "output should be streamed"); err != nil {
					return err
				}
				return assert.Contains(stdout, "100%", "progress should reach 100%")
			}),
			harness.NewStep("Failing operation exits non-zero", func(ctx *harness.Context) error {
				stdout, _, code := autoreg(ctx, "start", "fail")
				if code == 0 {
					return fmt.Errorf("failing operation exited 0")
				}
				return assert.Contains(stdout, "login failed", "stderr of the script should be merged into the stream")
			}),
			harness.NewStep("Unknown operation is rejected", func(ctx *harness.Context) error {
				_, stderr, code := autoreg(ctx, "start", "nope")
				if code == 0 {
					return fmt.Errorf("unknown operation was accepted")
				}
				return assert.Contains(stderr, "autoreg operations", "hint should name the operations command")
			}),
			harness.NewStep("Long running session can be interrupted", func(ctx *harness.Context) error {
				done := make(chan struct{})
				go func() {
					defer close(done)
					autoreg(ctx, "start", "slow", "--session-id", "slow-1")
				}()

				deadline := time.Now().Add(10 * time.Second)
				for {
					stdout, _, _ := autoreg(ctx, "sessions", "list")
					if strings.Contains(stdout, "slow-1") {
						break
					}
					if time.Now().After(deadline) {
						return fmt.Errorf("session slow-1 never appeared")
					}
					time.Sleep(200 * time.Millisecond)
				}

				stdout, _, code := autoreg(ctx, "sessions", "interrupt", "slow-1")
				if err := assert.Equal(0, code, "interrupt should succeed"); err != nil {
					return err
				}
				if err := assert.Contains(stdout, "slow-1", "message should name the session"); err != nil {
					return err
				}

				select {
				case <-done:
					return nil
				case <-time.After(10 * time.Second):
					return fmt.Errorf("start command did not end after interrupt")
				}
			}),
			harness.NewStep("History lists the runs", func(ctx *harness.Context) error {
				stdout, _, code := autoreg(ctx, "history", "--json")
				if err := assert.Equal(0, code, "history should succeed"); err != nil {
					return err
				}
				for _, want := range []string{`"success"`, `"failed"`, `"interrupted"`} {
					if err := assert.Contains(stdout, want, "history should record "+want); err != nil {
						return err
					}
				}
				return nil
			}),
			stopDaemonStep(),
		},
	}
}

// FlagsScenario raises and clears flag files through the daemon.
func FlagsScenario() *harness.Scenario {
	return &harness.Scenario{
		Name: "autoreg-flags",
		Tags: []string{"daemon", "flags"},
		Steps: []harness.Step{
			withDaemon("flags"),
			harness.NewStep("Raise and list grava", func(ctx *harness.Context) error {
				if _, _, code := autoreg(ctx, "flags", "raise", "grava"); code != 0 {
					return fmt.Errorf("raise grava exited %d", code)
				}
				stdout, _, _ := autoreg(ctx, "flags", "--json")
				return assert.Contains(stdout, `"raised": true`, "grava should be raised")
			}),
			harness.NewStep("Script-owned flag cannot be cleared", func(ctx *harness.Context) error {
				_, stderr, code := autoreg(ctx, "flags", "clear", "grava")
				if code == 0 {
					return fmt.Errorf("clearing grava succeeded")
				}
				return assert.Contains(stderr, "removes this flag", "protected flag hint expected")
			}),
			stopDaemonStep(),
		},
	}
}
