package session

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/command"
	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
)

func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "autoreg-session-test")
	if err != nil {
		panic(err)
	}
	os.Setenv("AUTOREG_HOME", home)
	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}

const promptLine = ">>> Digite o comando (s/n):"

func shellStep(script string) config.Step {
	return config.Step{Args: []string{"-c", script}}
}

func interactiveStep(script string) config.Step {
	return config.Step{Args: []string{"-c", script}, Interactive: true}
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []history.Execution
}

func (f *fakeRecorder) Record(_ context.Context, e history.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, e)
	return nil
}

func (f *fakeRecorder) all() []history.Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Execution(nil), f.recs...)
}

type fakeContainers struct {
	running bool
	err     error
}

func (f fakeContainers) IsContainerRunning(context.Context, string) (bool, error) {
	return f.running, f.err
}

type harness struct {
	cfg      *config.Config
	manager  *Manager
	flags    *flags.Channel
	recorder *fakeRecorder
}

func newHarness(t *testing.T, ops map[string]config.Operation) *harness {
	t.Helper()
	cfg := &config.Config{
		Script: config.ScriptConfig{Entrypoint: "/bin/sh", WorkDir: t.TempDir()},
		Process: config.ProcessConfig{
			GracePeriod:  500 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
			DrainTimeout: time.Second,
		},
		Stream: config.StreamConfig{
			KeepAlive:     50 * time.Millisecond,
			PromptTimeout: 10 * time.Second,
			ReplayLines:   10,
		},
		Operations: ops,
	}
	cfg.SetDefaults()

	h := &harness{cfg: cfg, flags: flags.New(cfg.Flags), recorder: &fakeRecorder{}}
	m, err := NewManager(Options{
		Config:  cfg,
		Builder: command.NewBuilder(command.Target{Entrypoint: cfg.Script.Entrypoint, WorkDir: cfg.Script.WorkDir}),
		Flags:   h.flags,
		History: h.recorder,
	})
	require.NoError(t, err)
	h.manager = m
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return h
}

func collect(t *testing.T, st *Stream) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := st.Collect(ctx)
	require.NoError(t, err)
	return events
}

// nextOfType reads until an event of type want arrives.
func nextOfType(t *testing.T, st *Stream, want EventType) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		ev, err := st.Next(ctx)
		require.NoError(t, err, "waiting for %s", want)
		if ev.Type == want {
			return ev
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStartStreamsOutputThenSuccess(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"hello": {Steps: []config.Step{shellStep("echo hello; echo '   '; printf 'tail'")}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "hello", SessionID: "s1"})
	require.NoError(t, err)

	events := collect(t, st)
	require.Equal(t, []EventType{EventStart, EventOutput, EventOutput, EventSuccess}, types(events))

	assert.Equal(t, "/bin/sh -c echo hello; echo '   '; printf 'tail'", events[0].Command)
	assert.Equal(t, "hello", events[1].Line)
	assert.Equal(t, "tail", events[2].Line, "partial last line is flushed")

	done := events[3]
	assert.True(t, done.Complete)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ExitCode)
	assert.Equal(t, 0, *done.ExitCode)

	assert.Nil(t, h.manager.Registry().Get("s1"))
	assert.Empty(t, h.manager.List())

	recs := h.recorder.all()
	require.Len(t, recs, 1)
	assert.Equal(t, history.StatusSuccess, recs[0].Status)
	assert.Equal(t, int64(2), recs[0].Lines)
}

func TestMultiStepProgress(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"multi": {Steps: []config.Step{shellStep("true"), shellStep("true"), shellStep("true")}},
	})
	ctx := context.Background()

	st, err := h.manager.Start(ctx, StartRequest{Operation: "multi", Step: 1})
	require.NoError(t, err)
	events := collect(t, st)
	last := events[len(events)-1]
	assert.Equal(t, EventSuccess, last.Type)
	assert.Equal(t, 66, last.Progress)
	assert.False(t, last.Complete)
	require.NotNil(t, last.Step)
	assert.Equal(t, 1, *last.Step)
	assert.Equal(t, 3, last.Total)

	st, err = h.manager.Start(ctx, StartRequest{Operation: "multi", Step: 3})
	require.NoError(t, err)
	events = collect(t, st)
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Type)
	assert.True(t, events[0].Complete)
}

func TestNonZeroExitIsError(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"fail": {Steps: []config.Step{shellStep("echo boom >&2; exit 3")}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "fail"})
	require.NoError(t, err)
	events := collect(t, st)

	require.Equal(t, []EventType{EventStart, EventOutput, EventError}, types(events))
	assert.Equal(t, "boom", events[1].Line, "stderr is merged into the stream")
	assert.Equal(t, string(errors.ErrCodeProcessFailed), events[2].Code)
	assert.Equal(t, 3, *events[2].ExitCode)
	assert.Equal(t, history.StatusFailed, h.recorder.all()[0].Status)
}

func TestPromptThenSendInput(t *testing.T) {
	script := `echo "` + promptLine + `"; echo "` + promptLine + `"; read answer; echo "got $answer"`
	h := newHarness(t, map[string]config.Operation{
		"ask": {Steps: []config.Step{interactiveStep(script)}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "ask", SessionID: "s1"})
	require.NoError(t, err)

	prompt := nextOfType(t, st, EventAwaitingInput)
	assert.Equal(t, promptLine, prompt.Line)
	assert.True(t, h.flags.IsRaised(flags.Pause), "pause flag is held while an interactive step runs")

	infos := h.manager.List()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].AwaitingInput)
	assert.True(t, infos[0].Interactive)

	require.NoError(t, h.manager.SendInput("s1", "s"))

	rest := collect(t, st)
	require.Equal(t, []EventType{EventOutput, EventSuccess}, types(rest), "duplicate prompt is suppressed")
	assert.Equal(t, "got s", rest[0].Line)
	assert.False(t, h.flags.IsRaised(flags.Pause))
}

func TestSendInputErrors(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"sleepy": {Steps: []config.Step{shellStep("sleep 5")}},
	})

	err := h.manager.SendInput("missing", "x")
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))

	_, err = h.manager.Start(context.Background(), StartRequest{Operation: "sleepy", SessionID: "s1"})
	require.NoError(t, err)
	err = h.manager.SendInput("s1", "x")
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err), "non-interactive steps have no input channel")
}

func TestWriteInputAfterExit(t *testing.T) {
	h := newHarness(t, nil)
	sess, err := h.manager.launcher.Launch(LaunchSpec{
		SessionID:   "gone",
		Args:        []string{"-c", "exit 0"},
		Interactive: true,
	})
	require.NoError(t, err)
	<-sess.Done()

	err = sess.WriteInput("hello")
	assert.Equal(t, errors.ErrCodeProcessExited, errors.GetCode(err))
	assert.False(t, sess.HasInput())
}

func TestInterruptWithinGrace(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"sleepy": {Steps: []config.Step{shellStep("echo ready; sleep 30")}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "sleepy", SessionID: "s1"})
	require.NoError(t, err)
	nextOfType(t, st, EventOutput)

	begin := time.Now()
	res, err := h.manager.Interrupt("s1")
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), h.cfg.Process.GracePeriod+time.Second)
	assert.False(t, res.Forced)
	assert.Nil(t, h.manager.Registry().Get("s1"))

	rest := collect(t, st)
	last := rest[len(rest)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, string(errors.ErrCodeInterrupted), last.Code)
}

func TestInterruptEscalatesToKill(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"stubborn": {Steps: []config.Step{shellStep(`trap "" TERM; echo ready; while true; do sleep 0.1; done`)}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "stubborn", SessionID: "s1"})
	require.NoError(t, err)
	nextOfType(t, st, EventOutput)

	begin := time.Now()
	res, err := h.manager.Interrupt("s1")
	require.NoError(t, err)
	elapsed := time.Since(begin)
	assert.True(t, res.Forced)
	assert.GreaterOrEqual(t, elapsed, h.cfg.Process.GracePeriod)
	assert.Less(t, elapsed, h.cfg.Process.GracePeriod+2*time.Second)

	recs := collect(t, st)
	assert.Equal(t, EventError, recs[len(recs)-1].Type)
	require.Eventually(t, func() bool { return len(h.recorder.all()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, history.StatusInterrupted, h.recorder.all()[0].Status)
}

func TestInterruptUnknownAndFinished(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"quick": {Steps: []config.Step{shellStep("true")}},
	})

	_, err := h.manager.Interrupt("nope")
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))

	// Launch and register without consuming output so the exited session
	// stays registered.
	sess, err := h.manager.launcher.Launch(LaunchSpec{SessionID: "done", Args: []string{"-c", "true"}})
	require.NoError(t, err)
	require.NoError(t, h.manager.Registry().Register("done", sess))
	<-sess.Done()

	res, err := h.manager.Interrupt("done")
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinished)

	_, err = h.manager.Interrupt("done")
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
}

func TestDuplicateSessionID(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"sleepy": {Steps: []config.Step{shellStep("sleep 30")}},
	})
	ctx := context.Background()

	_, err := h.manager.Start(ctx, StartRequest{Operation: "sleepy", SessionID: "dup"})
	require.NoError(t, err)

	_, err = h.manager.Start(ctx, StartRequest{Operation: "sleepy", SessionID: "dup"})
	assert.Equal(t, errors.ErrCodeSessionExists, errors.GetCode(err))
	assert.Len(t, h.manager.List(), 1)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"hello": {Steps: []config.Step{shellStep("true")}},
	})
	ctx := context.Background()

	_, err := h.manager.Start(ctx, StartRequest{Operation: "unknown"})
	assert.Equal(t, errors.ErrCodeOperationNotFound, errors.GetCode(err))

	_, err = h.manager.Start(ctx, StartRequest{Operation: "hello", Step: -1})
	assert.Equal(t, errors.ErrCodeStepOutOfRange, errors.GetCode(err))

	_, err = h.manager.Start(ctx, StartRequest{Operation: "hello", SessionID: "bad id; rm -rf"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	st, err := h.manager.Start(ctx, StartRequest{Operation: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, st.SessionID(), "an id is generated when none is given")
	collect(t, st)
}

func TestLaunchFailureIsSingleErrorEvent(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"ask": {Steps: []config.Step{interactiveStep("true")}},
	})
	h.manager.launcher = NewLauncher(command.NewBuilder(command.Target{Entrypoint: "/nonexistent/autoreg"}), false)

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "ask", SessionID: "s1"})
	require.NoError(t, err)
	events := collect(t, st)

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, string(errors.ErrCodeLaunchFailed), events[0].Code)
	assert.False(t, h.flags.IsRaised(flags.Pause), "pause flag released after a failed launch")
	assert.Nil(t, h.manager.Registry().Get("s1"))
	assert.Equal(t, history.StatusLaunchFailed, h.recorder.all()[0].Status)
}

func TestContainerNotRunning(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"hello": {Steps: []config.Step{shellStep("true")}},
	})
	h.cfg.Container = config.ContainerConfig{Enabled: true, Name: "autoreg"}
	h.manager.builder = command.NewBuilder(command.Target{
		Entrypoint:   "/bin/sh",
		Container:    "autoreg",
		UseContainer: true,
	})
	h.manager.containers = fakeContainers{running: false}

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "hello"})
	require.NoError(t, err)
	events := collect(t, st)
	require.Len(t, events, 1)
	assert.Equal(t, string(errors.ErrCodeContainerNotRunning), events[0].Code)
	assert.Empty(t, h.manager.List())
}

func TestReconnectReceivesRemainingEventsWithReplay(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"slow": {Steps: []config.Step{shellStep("echo one; echo two; sleep 0.5; echo three")}},
	})
	ctx := context.Background()

	first, err := h.manager.Start(ctx, StartRequest{Operation: "slow", SessionID: "s1"})
	require.NoError(t, err)
	nextOfType(t, first, EventOutput)
	nextOfType(t, first, EventOutput)
	// The first client goes away here; the process keeps running.

	second, err := h.manager.Reconnect(ctx, "s1", true)
	require.NoError(t, err)
	events := collect(t, second)

	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, EventInfo, events[0].Type)
	assert.True(t, events[1].Replay)
	assert.Equal(t, "one", events[1].Line)
	assert.True(t, events[2].Replay)
	assert.Equal(t, "two", events[2].Line)
	assert.Equal(t, "three", events[3].Line)
	assert.False(t, events[3].Replay)
	assert.Equal(t, EventSuccess, events[4].Type)
}

func TestReconnectAfterFinish(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"quick": {Steps: []config.Step{shellStep("echo hi")}},
	})
	ctx := context.Background()

	_, err := h.manager.Reconnect(ctx, "missing", false)
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))

	st, err := h.manager.Start(ctx, StartRequest{Operation: "quick", SessionID: "s1"})
	require.NoError(t, err)
	collect(t, st)

	// Put the drained session back as if no stream had reaped it yet.
	require.NoError(t, h.manager.Registry().Register("s1", st.sess))
	again, err := h.manager.Reconnect(ctx, "s1", false)
	require.NoError(t, err)
	events := collect(t, again)
	require.Len(t, events, 1)
	assert.Equal(t, EventInfo, events[0].Type)
	assert.Contains(t, events[0].Message, "exit code 0")
	assert.Nil(t, h.manager.Registry().Get("s1"))
}

func TestPromptTimeoutClosesStreamOnly(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"ask": {Steps: []config.Step{interactiveStep(`echo "` + promptLine + `"; read answer`)}},
	})
	h.cfg.Stream.PromptTimeout = 200 * time.Millisecond

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "ask", SessionID: "s1"})
	require.NoError(t, err)

	events := collect(t, st)
	last := events[len(events)-1]
	assert.Equal(t, EventWarn, last.Type)
	assert.True(t, strings.Contains(last.Message, "reconnect"))

	sess := h.manager.Registry().Get("s1")
	require.NotNil(t, sess)
	assert.Equal(t, StatusRunning, sess.Status(), "the process keeps waiting")

	_, err = h.manager.Interrupt("s1")
	require.NoError(t, err)
}

func TestListReconcilesExitedSessions(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"quick": {Steps: []config.Step{shellStep("echo a; echo b")}},
	})

	st, err := h.manager.Start(context.Background(), StartRequest{Operation: "quick", SessionID: "s1"})
	require.NoError(t, err)
	nextOfType(t, st, EventStart)
	// Nobody reads the rest; the reader still drains the process output.

	sess := h.manager.Registry().Get("s1")
	require.NotNil(t, sess)
	require.Eventually(t, sess.Drained, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, h.manager.List())
}

func TestLastLineSurvivesExitNearPollTick(t *testing.T) {
	// The sleep matches the poll interval so exit lands next to an idle poll.
	h := newHarness(t, map[string]config.Operation{
		"tail": {Steps: []config.Step{shellStep("echo first; sleep 0.02; echo last")}},
	})

	for i := 0; i < 30; i++ {
		st, err := h.manager.Start(context.Background(), StartRequest{Operation: "tail"})
		require.NoError(t, err)

		events := collect(t, st)
		require.Equal(t, []EventType{EventStart, EventOutput, EventOutput, EventSuccess}, types(events), "run %d", i)
		assert.Equal(t, "last", events[2].Line)
	}
}

func TestConcurrentStartSameID(t *testing.T) {
	h := newHarness(t, map[string]config.Operation{
		"sleepy": {Steps: []config.Step{shellStep("sleep 30")}},
	})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		exists  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.manager.Start(ctx, StartRequest{Operation: "sleepy", SessionID: "s1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.GetCode(err) == errors.ErrCodeSessionExists:
				exists++
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			assert.LessOrEqual(t, len(h.manager.List()), 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 19, exists)
	assert.Equal(t, 1, h.manager.Registry().Len())

	res, err := h.manager.Interrupt("s1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinished)
	assert.Equal(t, 0, h.manager.Registry().Len())
	assert.Empty(t, h.manager.List())
}
