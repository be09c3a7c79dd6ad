package command

import (
	"context"
	"os/exec"
)

// Executor creates exec.Cmd instances so tests can substitute the program
// that actually runs (for example a shell script standing in for the
// automation entry point).
type Executor interface {
	// Command creates a new exec.Cmd instance for the given command and arguments.
	Command(name string, args ...string) *exec.Cmd

	// CommandContext creates a new context-aware exec.Cmd instance.
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor uses os/exec directly.
type RealExecutor struct{}

// Command creates a standard exec.Cmd.
func (e *RealExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// CommandContext creates a standard context-aware exec.Cmd.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// ShellExecutor ignores the requested program and runs Script through
// /bin/sh with the original argv available as positional parameters.
// It is used to drive sessions from canned scripts.
type ShellExecutor struct {
	Script string
}

// Command runs the configured script, passing name and args as $0..$n.
func (e *ShellExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command("/bin/sh", append([]string{"-c", e.Script, name}, args...)...)
}

// CommandContext runs the configured script bound to ctx.
func (e *ShellExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", append([]string{"-c", e.Script, name}, args...)...)
}
