package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/session"
	"github.com/grovetools/autoreg/logging"
)

// EventPrinter renders a session stream on the terminal.
type EventPrinter struct {
	pretty *logging.PrettyLogger
	out    io.Writer
	json   bool
	start  time.Time
}

// NewEventPrinter creates a printer writing to out. With jsonOutput every
// event is printed as one JSON line.
func NewEventPrinter(out io.Writer, jsonOutput bool) *EventPrinter {
	return &EventPrinter{
		pretty: logging.NewPrettyLogger().WithWriter(out),
		out:    out,
		json:   jsonOutput,
		start:  time.Now(),
	}
}

// Print renders one event.
func (p *EventPrinter) Print(ev session.Event) {
	if p.json {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(p.out, string(data))
		return
	}

	switch ev.Type {
	case session.EventStart:
		p.pretty.InfoPretty(fmt.Sprintf("%s %s", ev.Operation, stepLabel(ev)))
		p.pretty.Field("session", ev.SessionID)
		if ev.Command != "" {
			p.pretty.Field("command", ev.Command)
		}
		p.pretty.Divider()
	case session.EventOutput:
		p.pretty.Output(ev.Line)
	case session.EventAwaitingInput:
		p.pretty.Prompt(ev.Line)
	case session.EventInfo:
		p.pretty.InfoPretty(ev.Message)
	case session.EventWarn:
		p.pretty.WarnPretty(ev.Message)
	case session.EventSuccess, session.EventComplete:
		p.pretty.Divider()
		msg := ev.Message
		if msg == "" {
			msg = "finished"
		}
		p.pretty.Success(fmt.Sprintf("%s (%d%%, %s)", msg, ev.Progress, time.Since(p.start).Round(time.Millisecond)))
	case session.EventError:
		p.pretty.Divider()
		p.pretty.ErrorPretty(ev.Message, nil)
		if ev.ExitCode != nil {
			p.pretty.Field("exit code", *ev.ExitCode)
		}
	}
}

// StreamError returns a non-nil error when a stream ended with an error
// event. The event was already printed, so the error handler stays quiet.
func StreamError(last session.Event) error {
	if last.Type != session.EventError {
		return nil
	}
	code := errors.ErrorCode(last.Code)
	if code == "" {
		code = errors.ErrCodeProcessFailed
	}
	return errors.New(code, last.Message).WithDetail("printed", true)
}

func stepLabel(ev session.Event) string {
	if ev.Step == nil || ev.Total <= 1 {
		return ""
	}
	return fmt.Sprintf("step %d/%d", *ev.Step+1, ev.Total)
}
