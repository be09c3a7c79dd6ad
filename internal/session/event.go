package session

import (
	"time"

	"github.com/grovetools/autoreg/errors"
)

// EventType discriminates stream records.
type EventType string

const (
	EventStart         EventType = "start"
	EventOutput        EventType = "output"
	EventAwaitingInput EventType = "awaiting-input"
	EventSuccess       EventType = "success"
	EventError         EventType = "error"
	EventInfo          EventType = "info"
	EventWarn          EventType = "warn"
	EventComplete      EventType = "complete"

	// EventKeepAlive is returned by Stream.Next when the session is idle.
	// Transports render it as a comment or ping, never as a record.
	EventKeepAlive EventType = "keepalive"

	// eventEnd is the reader's end-of-stream marker. It never leaves the package.
	eventEnd EventType = "end"
)

// Event is one record of a session stream.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Line      string    `json:"line,omitempty"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Command   string    `json:"command,omitempty"`
	Step      *int      `json:"step,omitempty"`
	Total     int       `json:"total,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Complete  bool      `json:"complete,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Replay    bool      `json:"replay,omitempty"`
	Time      time.Time `json:"time"`
}

// Terminal reports whether the event ends a stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventSuccess, EventError, EventComplete:
		return true
	}
	return false
}

func intPtr(v int) *int {
	return &v
}

func newEvent(t EventType, sessionID string) Event {
	return Event{Type: t, SessionID: sessionID, Time: time.Now()}
}

// Progress is the percentage of steps done once step (zero based) finished.
func Progress(step, total int) int {
	if total <= 0 {
		return 100
	}
	return (step + 1) * 100 / total
}

// ErrorEvent renders err as a terminal stream record.
func ErrorEvent(sessionID string, err error) Event {
	ev := newEvent(EventError, sessionID)
	ev.Code = string(errors.GetCode(err))
	if ev.Code == "" {
		ev.Code = string(errors.ErrCodeInternal)
	}
	ev.Message = errors.MessageOf(err)
	return ev
}
