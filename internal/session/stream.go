package session

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Stream is one consumer attached to a session. Next is not safe for
// concurrent use; each transport goroutine owns its stream. Several streams
// on the same session share its events rather than each seeing all of them.
type Stream struct {
	m     *Manager
	id    string
	sess  *Session
	queue *Queue

	pending  []Event
	finished bool

	awaiting      bool
	awaitingSince time.Time
}

// SessionID returns the id of the session the stream belongs to.
func (st *Stream) SessionID() string {
	return st.id
}

// Next blocks for the next event. Idle periods yield EventKeepAlive. After
// the terminal event it returns io.EOF. The error is ctx.Err() when the
// consumer went away; the process keeps running in that case.
func (st *Stream) Next(ctx context.Context) (Event, error) {
	if len(st.pending) > 0 {
		ev := st.pending[0]
		st.pending = st.pending[1:]
		if ev.Terminal() {
			st.finished = true
		}
		return ev, nil
	}
	if st.finished || st.sess == nil {
		return Event{}, io.EOF
	}

	cfg := st.m.cfg.Stream
	ev, ok, err := st.queue.Pop(ctx, cfg.KeepAlive)
	if err != nil {
		return Event{}, err
	}

	if !ok {
		if st.awaiting && cfg.PromptTimeout > 0 && time.Since(st.awaitingSince) >= cfg.PromptTimeout {
			st.finished = true
			warn := newEvent(EventWarn, st.id)
			warn.Message = fmt.Sprintf("no answer to the prompt within %s; the process is still waiting, reconnect to continue", cfg.PromptTimeout)
			st.m.logger.WithField("session_id", st.id).Warn("Prompt timed out; closing stream")
			return warn, nil
		}
		if st.sess.Drained() && st.queue.Len() == 0 {
			// Another stream consumed the end of this session.
			st.finished = true
			info := newEvent(EventInfo, st.id)
			info.ExitCode = intPtr(st.sess.ExitCode())
			info.Message = fmt.Sprintf("process finished with exit code %d", st.sess.ExitCode())
			return info, nil
		}
		return newEvent(EventKeepAlive, st.id), nil
	}

	switch ev.Type {
	case EventOutput:
		st.awaiting = false
	case EventAwaitingInput:
		st.awaiting = true
		st.awaitingSince = time.Now()
	case eventEnd:
		st.finished = true
		return st.m.finish(st.sess), nil
	}
	return ev, nil
}

// Collect drains the stream until it ends, skipping keepalives. It is meant
// for callers that do not stream, such as tests and one-shot CLI commands.
func (st *Stream) Collect(ctx context.Context) ([]Event, error) {
	var events []Event
	for {
		ev, err := st.Next(ctx)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		if ev.Type == EventKeepAlive {
			continue
		}
		events = append(events, ev)
	}
}
