package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/session"
)

func intPtr(v int) *int { return &v }

func TestEventPrinterText(t *testing.T) {
	var buf bytes.Buffer
	p := NewEventPrinter(&buf, false)

	p.Print(session.Event{Type: session.EventStart, SessionID: "s1", Operation: "solicitar-tcs", Step: intPtr(0), Total: 2, Command: "python3 -u autoreg.py"})
	p.Print(session.Event{Type: session.EventOutput, Line: "processing 1/10"})
	p.Print(session.Event{Type: session.EventAwaitingInput, Line: "Continuar? (s/n)"})
	p.Print(session.Event{Type: session.EventError, Message: "process exited with code 2", ExitCode: intPtr(2)})

	out := buf.String()
	assert.Contains(t, out, "solicitar-tcs step 1/2")
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "processing 1/10")
	assert.Contains(t, out, "Continuar? (s/n)")
	assert.Contains(t, out, "process exited with code 2")
	assert.Contains(t, out, "exit code")
}

func TestEventPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewEventPrinter(&buf, true)
	p.Print(session.Event{Type: session.EventOutput, SessionID: "s1", Line: "hello"})

	var ev session.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, session.EventOutput, ev.Type)
	assert.Equal(t, "hello", ev.Line)
}

func TestStreamError(t *testing.T) {
	assert.NoError(t, StreamError(session.Event{Type: session.EventSuccess}))

	err := StreamError(session.Event{Type: session.EventError, Code: "SESSION_EXISTS", Message: "busy"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSessionExists, errors.GetCode(err))

	err = StreamError(session.Event{Type: session.EventError, Message: "boom"})
	assert.Equal(t, errors.ErrCodeProcessFailed, errors.GetCode(err))
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &ErrorHandler{Out: &buf}

	err := errors.New(errors.ErrCodeDaemonUnreachable, "down").WithDetail("url", "http://127.0.0.1:5000")
	assert.Equal(t, err, h.Handle(err))
	assert.Contains(t, buf.String(), "http://127.0.0.1:5000")
	assert.Contains(t, buf.String(), "autoreg serve")

	buf.Reset()
	h.Handle(errors.SessionNotFound("abc"))
	assert.Contains(t, buf.String(), "sessions list")

	buf.Reset()
	h.Handle(StreamError(session.Event{Type: session.EventError, Message: "already shown"}))
	assert.Empty(t, buf.String())

	buf.Reset()
	h.Verbose = true
	h.Handle(errors.Wrap(assert.AnError, errors.ErrCodeInternal, "wrapped"))
	assert.Contains(t, buf.String(), "Error details")
	assert.Contains(t, buf.String(), "Caused by")

	assert.NoError(t, h.Handle(nil))
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four five six", 10)
	for _, line := range bytes.Split([]byte(wrapped), []byte("\n")) {
		assert.LessOrEqual(t, len(line), 10)
	}
	assert.Equal(t, "keep\nbreaks", wrapText("keep\nbreaks", 40))
}

func TestParseDescription(t *testing.T) {
	desc, examples := parseDescription("Does things.\n\nExamples:\n  autoreg start x")
	assert.Equal(t, "Does things.", desc)
	assert.Equal(t, "autoreg start x", examples)
}

func TestStandardCommandOptions(t *testing.T) {
	cmd := NewStandardCommand("autoreg", "test")
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	cmd.SetArgs([]string{"--json", "-c", "/tmp/autoreg.yml"})
	require.NoError(t, cmd.Execute())

	opts := GetOptions(cmd)
	assert.True(t, opts.JSONOutput)
	assert.False(t, opts.Verbose)
	assert.Equal(t, "/tmp/autoreg.yml", opts.ConfigFile)
}

func TestVersionCommandJSON(t *testing.T) {
	root := NewStandardCommand("autoreg", "test")
	root.AddCommand(NewVersionCommand("autoreg"))
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())

	var info map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestHelpListsEnvironment(t *testing.T) {
	cmd := NewStandardCommand("autoreg", "Web control panel")
	cmd.Annotations = map[string]string{EnvAnnotation: "AUTOREG_ADDR=daemon address\nAUTOREG_HOME=state root"}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	styledHelpFunc(cmd, nil)

	out := buf.String()
	assert.Contains(t, out, "ENVIRONMENT")
	assert.Contains(t, out, "AUTOREG_ADDR")
	assert.Contains(t, out, "state root")
}
