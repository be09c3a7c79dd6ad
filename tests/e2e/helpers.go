package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

// findAutoregBinary finds the autoreg binary under test.
// The binary is expected on PATH.
func findAutoregBinary() (string, error) {
	path, err := exec.LookPath("autoreg")
	if err != nil {
		return "", fmt.Errorf("could not find 'autoreg' binary in PATH; build ./cmd/autoreg into a directory on PATH")
	}
	return path, nil
}

// freeAddr returns a loopback address nothing listens on.
func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// fakeScript is a stand-in for the automation script. It understands the
// arguments of the operations written by writeProject.
const fakeScript = `#!/bin/sh
case "$1" in
  --echo)
    echo "processing record 1"
    echo "processing record 2"
    echo "done"
    ;;
  --fail)
    echo "login failed" >&2
    exit 4
    ;;
  --slow)
    while true; do echo tick; sleep 1; done
    ;;
esac
`

// writeProject creates a project directory with a fake script and an
// autoreg.yml that listens on addr. It returns the config path.
func writeProject(ctx *harness.Context, name, addr string) (string, error) {
	dir := ctx.NewDir(name)
	script := filepath.Join(dir, "autoreg.sh")
	if err := fs.WriteString(script, fakeScript); err != nil {
		return "", err
	}
	if err := os.Chmod(script, 0755); err != nil {
		return "", err
	}

	cfg := fmt.Sprintf(`version: "1.0"
server:
  listen: %s
  shutdown_timeout: 3s
script:
  interpreter: /bin/sh
  entrypoint: %s
  workdir: %s
process:
  grace_period: 1s
operations:
  echo:
    description: Print a few lines
    steps:
      - args: ["--echo"]
  fail:
    steps:
      - args: ["--fail"]
  slow:
    steps:
      - args: ["--slow"]
`, addr, script, dir)
	path := filepath.Join(dir, "autoreg.yml")
	return path, fs.WriteString(path, cfg)
}

// startDaemon runs 'autoreg serve' in the background with the sandboxed
// HOME and waits until /health answers.
func startDaemon(ctx *harness.Context, bin, cfgPath, addr string) (*exec.Cmd, error) {
	cmd := exec.Command(bin, "serve", "--config", cfgPath)
	cmd.Env = append(os.Environ(), "HOME="+ctx.HomeDir(), "AUTOREG_HOME=")
	cmd.Dir = filepath.Dir(cfgPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return cmd, nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = cmd.Process.Kill()
	_, _ = cmd.Process.Wait()
	return nil, fmt.Errorf("daemon did not become healthy on %s", addr)
}

// stopDaemon sends SIGTERM and waits for the process to exit.
func stopDaemon(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		return fmt.Errorf("daemon did not stop after SIGTERM")
	}
}

// withDaemon prepares a project, starts the daemon and stores everything
// later steps need in the context.
func withDaemon(name string) harness.Step {
	return harness.NewStep("Start daemon", func(ctx *harness.Context) error {
		bin, err := findAutoregBinary()
		if err != nil {
			return err
		}
		addr, err := freeAddr()
		if err != nil {
			return err
		}
		cfgPath, err := writeProject(ctx, name, addr)
		if err != nil {
			return err
		}
		daemon, err := startDaemon(ctx, bin, cfgPath, addr)
		if err != nil {
			return err
		}
		ctx.Set("bin", bin)
		ctx.Set("config", cfgPath)
		ctx.Set("addr", addr)
		ctx.Set("daemon", daemon)
		return nil
	})
}

// stopDaemonStep stops the daemon started by withDaemon.
func stopDaemonStep() harness.Step {
	return harness.NewStep("Stop daemon", func(ctx *harness.Context) error {
		daemon, _ := ctx.Get("daemon").(*exec.Cmd)
		return stopDaemon(daemon)
	})
}

// autoreg runs the CLI against the scenario's config.
func autoreg(ctx *harness.Context, args ...string) (stdout, stderr string, exitCode int) {
	full := append([]string{"--config", ctx.GetString("config")}, args...)
	cmd := ctx.Command(ctx.GetString("bin"), full...).Dir(filepath.Dir(ctx.GetString("config")))
	result := cmd.Run()
	ctx.ShowCommandOutput(cmd.String(), result.Stdout, result.Stderr)
	return result.Stdout, result.Stderr, result.ExitCode
}
