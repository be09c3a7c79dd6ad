package session

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/logging"
	"github.com/grovetools/autoreg/pkg/process"
)

// LaunchSpec describes one step to run.
type LaunchSpec struct {
	SessionID   string
	Operation   string
	Step        int
	Total       int
	Args        []string
	Interactive bool
}

// Launcher spawns the automation entry point with merged output.
type Launcher struct {
	builder *command.Builder
	usePTY  bool
	logger  *logrus.Entry
}

// NewLauncher creates a Launcher. With usePTY the child gets a
// pseudo-terminal instead of pipes.
func NewLauncher(builder *command.Builder, usePTY bool) *Launcher {
	return &Launcher{
		builder: builder,
		usePTY:  usePTY,
		logger:  logging.NewLogger("autoreg-launcher"),
	}
}

// Launch starts the process for spec and its waiter. The returned session
// has no reader yet; it starts when the first stream attaches.
func (l *Launcher) Launch(spec LaunchSpec) (*Session, error) {
	argv := l.builder.Invocation(spec.Args, spec.Interactive)
	cmd, err := l.builder.Cmd(argv)
	if err != nil {
		return nil, errors.LaunchFailed(argv, err)
	}

	var sess *Session
	if l.usePTY {
		sess, err = l.startPTY(spec, cmd)
	} else {
		sess, err = l.startPipes(spec, cmd)
	}
	if err != nil {
		return nil, errors.LaunchFailed(argv, err)
	}

	sess.Operation = spec.Operation
	sess.Step = spec.Step
	sess.Total = spec.Total
	sess.Interactive = spec.Interactive
	sess.Command = argv

	go sess.wait()

	l.logger.WithFields(logrus.Fields{
		"session_id": spec.SessionID,
		"pid":        sess.PID(),
		"command":    sess.CommandString(),
		"pty":        l.usePTY,
	}).Debug("Process launched")
	return sess, nil
}

// startPipes merges stdout and stderr into one pipe so lines keep the
// order the child wrote them in.
func (l *Launcher) startPipes(spec LaunchSpec, cmd *exec.Cmd) (*Session, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	// Non-interactive children read from the null device.
	var stdin io.WriteCloser
	if spec.Interactive {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			pr.Close()
			pw.Close()
			return nil, err
		}
	}

	process.NewGroup(cmd)
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds its own copy of the write end.
	pw.Close()

	return newSession(spec.SessionID, cmd, pr, stdin), nil
}

// startPTY runs the child as a session leader on a new terminal. The
// terminal echoes typed input, so answers show up as output lines.
func (l *Launcher) startPTY(spec LaunchSpec, cmd *exec.Cmd) (*Session, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	var stdin io.WriteCloser
	if spec.Interactive {
		stdin = ptyInput{ptmx}
	}
	return newSession(spec.SessionID, cmd, ptmx, stdin), nil
}

// ptyInput writes to the terminal master. Closing it is a no-op because
// the reader owns the master.
type ptyInput struct {
	f *os.File
}

func (p ptyInput) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p ptyInput) Close() error {
	return nil
}
