package session

import (
	stderrors "errors"
	"io"
	"os"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/grovetools/autoreg/internal/prompt"
	"github.com/sirupsen/logrus"
)

// readerOptions configures the output reader of a session.
type readerOptions struct {
	pollInterval time.Duration
	drainWarn    time.Duration
	replayLines  int
	matcher      *prompt.Matcher
	logger       *logrus.Entry
}

// startReader creates the session queue and its reader on first use and
// returns the queue. Later calls return the same queue.
func (s *Session) startReader(opts readerOptions) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue == nil {
		s.queue = NewQueue(opts.replayLines)
		go s.readOutput(s.queue, opts)
	}
	return s.queue
}

// pendingEvents returns the number of undelivered events, or -1 when no
// reader was started yet.
func (s *Session) pendingEvents() int {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return -1
	}
	return q.Len()
}

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// readOutput drains the merged output one byte per read so that a prompt
// without a trailing newline is still seen as soon as its line completes,
// and so nothing is withheld in a read buffer. It runs once per process.
func (s *Session) readOutput(q *Queue, opts readerOptions) {
	logger := opts.logger
	detector := prompt.NewDetector(opts.matcher)

	dl, canDeadline := s.output.(deadlineReader)
	buf := make([]byte, 1)
	var line []byte
	// Set once an idle poll saw the process gone. The next idle poll ends
	// the loop, so bytes written just before exit are still read.
	exitSeen := false

	for {
		if canDeadline {
			if err := dl.SetReadDeadline(time.Now().Add(opts.pollInterval)); err != nil {
				// PTY masters on some platforms are not pollable.
				canDeadline = false
			}
		}

		n, err := s.output.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				s.emitLine(q, detector, line)
				line = line[:0]
			} else {
				line = append(line, buf[0])
			}
		}
		if err == nil {
			continue
		}

		if stderrors.Is(err, os.ErrDeadlineExceeded) {
			// No bytes within the poll interval. Output may stay open after
			// exit when a grandchild inherited it, so check the process.
			if exitSeen {
				break
			}
			exitSeen = s.Exited()
			continue
		}
		if !isEndOfOutput(err) {
			logger.WithError(err).Warn("Output read failed")
		}
		break
	}

	s.emitLine(q, detector, line)

	select {
	case <-s.done:
	case <-time.After(opts.drainWarn):
		logger.Warn("Output closed but process still running; waiting for exit")
		<-s.done
	}

	_ = s.output.Close()
	s.closeInput()

	logger.WithField("exit_code", s.ExitCode()).WithField("lines", s.Lines()).Debug("Output reader finished")
	s.runExitHooks()

	end := newEvent(eventEnd, s.ID)
	end.ExitCode = intPtr(s.ExitCode())
	q.Push(end)
	close(s.readerDone)
}

// emitLine trims trailing whitespace, drops empty lines and classifies the rest.
func (s *Session) emitLine(q *Queue, detector *prompt.Detector, raw []byte) {
	text := strings.TrimRightFunc(string(raw), unicode.IsSpace)
	if text == "" {
		return
	}
	s.lines.Add(1)

	switch detector.Classify(text) {
	case prompt.Output:
		s.setAwaitingInput(false)
		ev := newEvent(EventOutput, s.ID)
		ev.Line = text
		q.Push(ev)
	case prompt.Prompt:
		s.setAwaitingInput(true)
		ev := newEvent(EventAwaitingInput, s.ID)
		ev.Line = text
		ev.Message = "process is waiting for input"
		q.Push(ev)
	case prompt.Repeat:
		// identical to the prompt just reported
	}
}

func isEndOfOutput(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, os.ErrClosed) ||
		// Linux PTY masters report EIO once the child side is gone.
		stderrors.Is(err, syscall.EIO)
}
