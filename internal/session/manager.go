// Package session supervises the processes started for operations: it
// launches them, reads their output, detects prompts and exposes the
// result as event streams that clients can detach from and reattach to.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/prompt"
	"github.com/grovetools/autoreg/logging"
)

// ContainerChecker reports whether the execution container is up.
type ContainerChecker interface {
	IsContainerRunning(ctx context.Context, name string) (bool, error)
}

// Recorder stores finished steps.
type Recorder interface {
	Record(ctx context.Context, e history.Execution) error
}

// Options wires a Manager. Only Config and Builder are required.
type Options struct {
	Config     *config.Config
	Builder    *command.Builder
	Registry   *Registry
	Flags      *flags.Channel
	Containers ContainerChecker
	History    Recorder
	Matcher    *prompt.Matcher
}

// StartRequest asks for one step of an operation.
type StartRequest struct {
	Operation string
	SessionID string
	Step      int
}

// InterruptResult describes the outcome of Interrupt.
type InterruptResult struct {
	SessionID       string `json:"session_id"`
	Message         string `json:"message"`
	AlreadyFinished bool   `json:"already_finished,omitempty"`
	Forced          bool   `json:"forced,omitempty"`
}

// Manager implements the control operations on top of the registry.
type Manager struct {
	cfg        *config.Config
	builder    *command.Builder
	launcher   *Launcher
	registry   *Registry
	flags      *flags.Channel
	containers ContainerChecker
	history    Recorder
	matcher    *prompt.Matcher
	logger     *logrus.Entry
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil || opts.Builder == nil {
		return nil, errors.New(errors.ErrCodeInternal, "session manager needs a config and a command builder")
	}

	matcher := opts.Matcher
	if matcher == nil {
		var err error
		if matcher, err = prompt.NewMatcher(opts.Config.Prompts); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid prompt rules")
		}
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Manager{
		cfg:        opts.Config,
		builder:    opts.Builder,
		launcher:   NewLauncher(opts.Builder, opts.Config.Process.UsePTY),
		registry:   registry,
		flags:      opts.Flags,
		containers: opts.Containers,
		history:    opts.History,
		matcher:    matcher,
		logger:     logging.NewLogger("autoreg-sessions"),
	}, nil
}

// Registry returns the session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start launches one step and attaches a stream to it. Failures that happen
// after the request was accepted (container down, spawn failure) are
// reported as a single error event on the returned stream.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Stream, error) {
	op, ok := m.cfg.Operations[req.Operation]
	if !ok {
		return nil, errors.OperationNotFound(req.Operation)
	}
	if req.Step < 0 {
		return nil, errors.New(errors.ErrCodeStepOutOfRange, fmt.Sprintf("step %d is out of range", req.Step)).
			WithDetail("step", req.Step)
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	} else if err := m.builder.Validate("sessionID", id); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid session id").WithDetail("session_id", id)
	}

	total := len(op.Steps)
	if req.Step >= total {
		ev := newEvent(EventComplete, id)
		ev.Operation = req.Operation
		ev.Total = total
		ev.Progress = 100
		ev.Complete = true
		ev.Message = "all steps finished"
		return m.staticStream(id, ev), nil
	}

	if existing := m.registry.Get(id); existing != nil && !existing.Exited() {
		return nil, errors.SessionExists(id, existing.PID())
	}

	step := op.Steps[req.Step]
	logger := m.logger.WithFields(logrus.Fields{
		"session_id": id,
		"operation":  req.Operation,
		"step":       req.Step,
	})

	if m.containers != nil && m.builder.ContainerMode() && m.cfg.Container.CheckContainer() {
		name := m.builder.Target().Container
		running, err := m.containers.IsContainerRunning(ctx, name)
		if err != nil {
			logger.WithError(err).Warn("Container status check failed")
			return m.staticStream(id, ErrorEvent(id, errors.Wrap(err, errors.ErrCodeContainerUnavailable,
				fmt.Sprintf("could not check container '%s': %v", name, err)))), nil
		}
		if !running {
			logger.WithField("container", name).Warn("Container is not running")
			return m.staticStream(id, ErrorEvent(id, errors.ContainerNotRunning(name))), nil
		}
	}

	var releasePause func()
	if step.Interactive && m.flags != nil {
		release, err := m.flags.HoldPause()
		if err != nil {
			logger.WithError(err).Warn("Failed to raise pause flag")
		} else {
			releasePause = release
		}
	}

	startedAt := time.Now()
	sess, err := m.launcher.Launch(LaunchSpec{
		SessionID:   id,
		Operation:   req.Operation,
		Step:        req.Step,
		Total:       total,
		Args:        step.Args,
		Interactive: step.Interactive,
	})
	if err != nil {
		if releasePause != nil {
			releasePause()
		}
		logger.WithError(err).Error("Failed to launch process")
		m.record(history.Execution{
			SessionID:  id,
			Operation:  req.Operation,
			Step:       req.Step,
			Total:      total,
			Command:    strings.Join(m.builder.Invocation(step.Args, step.Interactive), " "),
			Status:     history.StatusLaunchFailed,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		})
		return m.staticStream(id, ErrorEvent(id, err)), nil
	}

	// Hooks go in before the session is visible so a fast process cannot
	// finish before they are registered.
	if releasePause != nil {
		sess.OnExit(func(*Session) { releasePause() })
	}
	sess.OnExit(m.recordOutcome)

	if err := m.registry.Register(id, sess); err != nil {
		// Lost a race with a concurrent start for the same id.
		logger.WithError(err).Warn("Session id taken; stopping the new process")
		sess.clearExitHooks()
		sess.kill()
		if releasePause != nil {
			releasePause()
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"pid":     sess.PID(),
		"command": sess.CommandString(),
	}).Info("Process started")

	start := newEvent(EventStart, id)
	start.Operation = req.Operation
	start.Command = sess.CommandString()
	start.Step = intPtr(req.Step)
	start.Total = total
	start.Message = fmt.Sprintf("started step %d of %d", req.Step+1, total)
	return m.attach(sess, []Event{start}, false), nil
}

// SendInput writes one line to the session's process.
func (m *Manager) SendInput(id, text string) error {
	sess := m.registry.Get(id)
	if sess == nil {
		return errors.SessionNotFound(id)
	}
	if err := sess.WriteInput(text); err != nil {
		m.logger.WithField("session_id", id).WithError(err).Warn("Failed to send input")
		return err
	}
	m.logger.WithField("session_id", id).Debug("Input sent")
	return nil
}

// Interrupt terminates the session's process group, escalating to a kill
// after the grace period. It returns once the process has exited.
func (m *Manager) Interrupt(id string) (InterruptResult, error) {
	sess := m.registry.Get(id)
	if sess == nil {
		return InterruptResult{}, errors.SessionNotFound(id)
	}

	if sess.Exited() {
		m.registry.RemoveIf(id, sess)
		return InterruptResult{
			SessionID:       id,
			Message:         "process already finished",
			AlreadyFinished: true,
		}, nil
	}

	logger := m.logger.WithFields(logrus.Fields{"session_id": id, "pid": sess.PID()})
	logger.Info("Interrupting process")

	forced := sess.Terminate(m.cfg.Process.GracePeriod)
	m.registry.RemoveIf(id, sess)

	res := InterruptResult{SessionID: id, Message: "process interrupted", Forced: forced}
	if forced {
		res.Message = "process killed after grace period"
		logger.Warn("Process ignored termination request and was killed")
	}
	return res, nil
}

// List reconciles the registry and returns a snapshot of every session.
func (m *Manager) List() []Info {
	if removed := m.registry.Reconcile(); len(removed) > 0 {
		m.logger.WithField("sessions", removed).Debug("Reaped finished sessions")
	}
	sessions := m.registry.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Reconnect attaches a new stream to an existing session. With replay the
// stream first repeats recently delivered lines.
func (m *Manager) Reconnect(ctx context.Context, id string, replay bool) (*Stream, error) {
	sess := m.registry.Get(id)
	if sess == nil {
		return nil, errors.SessionNotFound(id)
	}

	if sess.Exited() && sess.Drained() && sess.pendingEvents() == 0 {
		m.registry.RemoveIf(id, sess)
		ev := newEvent(EventInfo, id)
		ev.ExitCode = intPtr(sess.ExitCode())
		ev.Message = fmt.Sprintf("process already finished with exit code %d", sess.ExitCode())
		return m.staticStream(id, ev), nil
	}

	info := newEvent(EventInfo, id)
	info.Operation = sess.Operation
	info.Command = sess.CommandString()
	info.Step = intPtr(sess.Step)
	info.Total = sess.Total
	info.Message = "reconnected to session"

	m.logger.WithFields(logrus.Fields{"session_id": id, "replay": replay}).Debug("Stream reattached")
	return m.attach(sess, []Event{info}, replay), nil
}

// Shutdown interrupts every running session and waits for them to exit
// or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range m.registry.List() {
		if s.Exited() {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Terminate(m.cfg.Process.GracePeriod)
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline reached with processes still running")
	}
}

func (m *Manager) attach(sess *Session, preamble []Event, replay bool) *Stream {
	q := sess.startReader(readerOptions{
		pollInterval: m.cfg.Process.PollInterval,
		drainWarn:    m.cfg.Process.DrainTimeout,
		replayLines:  m.cfg.Stream.ReplayLines,
		matcher:      m.matcher,
		logger:       m.logger.WithField("session_id", sess.ID),
	})

	pending := append([]Event(nil), preamble...)
	if replay {
		pending = append(pending, q.Replay()...)
	}
	return &Stream{
		m:       m,
		id:      sess.ID,
		sess:    sess,
		queue:   q,
		pending: pending,
	}
}

func (m *Manager) staticStream(id string, events ...Event) *Stream {
	return &Stream{m: m, id: id, pending: events}
}

// finish builds the terminal event once the reader reported the end of a
// session, and reaps it.
func (m *Manager) finish(sess *Session) Event {
	m.registry.RemoveIf(sess.ID, sess)

	code := sess.ExitCode()
	logger := m.logger.WithFields(logrus.Fields{"session_id": sess.ID, "exit_code": code})

	switch {
	case sess.Interrupted():
		ev := newEvent(EventError, sess.ID)
		ev.Code = string(errors.ErrCodeInterrupted)
		ev.Message = "process interrupted"
		ev.ExitCode = intPtr(code)
		logger.Info("Process interrupted")
		return ev
	case code == 0:
		ev := newEvent(EventSuccess, sess.ID)
		ev.Operation = sess.Operation
		ev.Step = intPtr(sess.Step)
		ev.Total = sess.Total
		ev.Progress = Progress(sess.Step, sess.Total)
		ev.Complete = sess.Step+1 >= sess.Total
		ev.ExitCode = intPtr(0)
		ev.Message = fmt.Sprintf("step %d of %d finished", sess.Step+1, sess.Total)
		logger.Info("Process finished")
		return ev
	default:
		ev := newEvent(EventError, sess.ID)
		ev.Code = string(errors.ErrCodeProcessFailed)
		ev.Message = fmt.Sprintf("process exited with code %d", code)
		ev.ExitCode = intPtr(code)
		logger.Warn("Process failed")
		return ev
	}
}

func (m *Manager) recordOutcome(sess *Session) {
	status := history.StatusSuccess
	switch {
	case sess.Interrupted():
		status = history.StatusInterrupted
	case sess.ExitCode() != 0:
		status = history.StatusFailed
	}
	m.record(history.Execution{
		SessionID:  sess.ID,
		Operation:  sess.Operation,
		Step:       sess.Step,
		Total:      sess.Total,
		Command:    sess.CommandString(),
		Status:     status,
		ExitCode:   intPtr(sess.ExitCode()),
		Lines:      sess.Lines(),
		StartedAt:  sess.StartedAt,
		FinishedAt: sess.EndedAt(),
	})
}

func (m *Manager) record(e history.Execution) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.history.Record(ctx, e); err != nil {
		m.logger.WithField("session_id", e.SessionID).WithError(err).Warn("Failed to record execution")
	}
}
