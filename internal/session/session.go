package session

import (
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/pkg/process"
)

// Status is the computed state of a session.
type Status string

const (
	StatusRunning Status = "running"
	// StatusExited means the process is gone but the session has not been reaped yet.
	StatusExited Status = "exited"
)

// Session binds an id to one spawned process and its channels.
type Session struct {
	ID          string
	Operation   string
	Step        int
	Total       int
	Interactive bool
	Command     []string
	StartedAt   time.Time

	cmd    *exec.Cmd
	pid    int
	output io.ReadCloser

	// done is closed by the waiter once cmd.Wait returned.
	done     chan struct{}
	exitCode int
	waitErr  error
	endedAt  time.Time

	// readerDone is closed after the reader pushed its end-of-stream marker.
	readerDone chan struct{}
	lines      atomic.Int64

	// inputMu serializes writers of stdin so a slow reader on the other
	// end never blocks status queries that take mu.
	inputMu sync.Mutex
	stdin   io.WriteCloser

	mu            sync.Mutex
	queue         *Queue
	awaitingInput bool
	interrupted   bool
	onExit        []func(*Session)
}

func newSession(id string, cmd *exec.Cmd, output io.ReadCloser, stdin io.WriteCloser) *Session {
	return &Session{
		ID:         id,
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		output:     output,
		stdin:      stdin,
		StartedAt:  time.Now(),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// wait is the only caller of cmd.Wait. It runs in its own goroutine for the
// lifetime of the process so every other path can observe exit through done.
func (s *Session) wait() {
	err := s.cmd.Wait()

	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	s.mu.Lock()
	s.exitCode = code
	s.waitErr = err
	s.endedAt = time.Now()
	s.mu.Unlock()
	close(s.done)
}

// PID returns the OS process id.
func (s *Session) PID() int {
	return s.pid
}

// CommandString is the literal invocation joined with spaces.
func (s *Session) CommandString() string {
	return strings.Join(s.Command, " ")
}

// Done is closed once the process has exited and been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited reports whether the process has exited.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Drained reports whether the output reader has finished.
func (s *Session) Drained() bool {
	select {
	case <-s.readerDone:
		return true
	default:
		return false
	}
}

// Status computes the session status.
func (s *Session) Status() Status {
	if s.Exited() {
		return StatusExited
	}
	return StatusRunning
}

// ExitCode returns the exit code once Done is closed. It is -1 when the
// process was killed by a signal.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// EndedAt returns when the process exit was observed.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Interrupted reports whether an interrupt was requested.
func (s *Session) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// AwaitingInput reports whether the last classified line was a prompt.
func (s *Session) AwaitingInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingInput
}

func (s *Session) setAwaitingInput(v bool) {
	s.mu.Lock()
	s.awaitingInput = v
	s.mu.Unlock()
}

// Lines is the number of output lines read so far.
func (s *Session) Lines() int64 {
	return s.lines.Load()
}

// HasInput reports whether an input handle is available.
func (s *Session) HasInput() bool {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.stdin != nil
}

// OnExit registers fn to run once, after the process exited and the reader drained its output.
func (s *Session) OnExit(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = append(s.onExit, fn)
}

func (s *Session) clearExitHooks() {
	s.mu.Lock()
	s.onExit = nil
	s.mu.Unlock()
}

func (s *Session) runExitHooks() {
	s.mu.Lock()
	hooks := s.onExit
	s.onExit = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// WriteInput writes text plus a newline to the process input. A write to a
// process that went away drops the stale handle and reports ProcessExited.
func (s *Session) WriteInput(text string) error {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	if s.stdin == nil {
		return errors.New(errors.ErrCodeSessionNotFound, "no input channel for session '"+s.ID+"'").
			WithDetail("session_id", s.ID)
	}

	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		if isGoneError(err) || s.Exited() {
			_ = s.stdin.Close()
			s.stdin = nil
			return errors.ProcessExited(s.ID)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write input").WithDetail("session_id", s.ID)
	}
	s.setAwaitingInput(false)
	return nil
}

func isGoneError(err error) bool {
	return stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, os.ErrClosed) ||
		stderrors.Is(err, io.ErrClosedPipe)
}

// closeInput releases the input handle once the process is gone.
func (s *Session) closeInput() {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
}

// Terminate requests graceful termination of the process group, waits up to
// grace and then kills it, waiting unconditionally for exit. It reports
// whether the kill was needed. Concurrent callers all return after exit.
func (s *Session) Terminate(grace time.Duration) bool {
	s.mu.Lock()
	first := !s.interrupted
	s.interrupted = true
	s.mu.Unlock()

	if first && !s.Exited() {
		_ = process.Terminate(s.pid)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.done:
		return false
	case <-timer.C:
	}

	_ = process.Kill(s.pid)
	<-s.done
	return true
}

// kill stops a process that must not survive, for example one that lost a
// registration race.
func (s *Session) kill() {
	_ = process.Kill(s.pid)
	<-s.done
	_ = s.output.Close()
	s.closeInput()
}

// Info is the listing view of a session.
type Info struct {
	SessionID     string    `json:"session_id"`
	PID           int       `json:"pid"`
	Status        Status    `json:"status"`
	Kind          string    `json:"kind"`
	Command       string    `json:"command"`
	Step          int       `json:"step"`
	Total         int       `json:"total"`
	Interactive   bool      `json:"interactive"`
	AwaitingInput bool      `json:"awaiting_input"`
	Lines         int64     `json:"lines"`
	StartedAt     time.Time `json:"started_at"`
}

// Info returns a snapshot for listings.
func (s *Session) Info() Info {
	return Info{
		SessionID:     s.ID,
		PID:           s.pid,
		Status:        s.Status(),
		Kind:          s.Operation,
		Command:       s.CommandString(),
		Step:          s.Step,
		Total:         s.Total,
		Interactive:   s.Interactive,
		AwaitingInput: s.AwaitingInput(),
		Lines:         s.Lines(),
		StartedAt:     s.StartedAt,
	}
}
