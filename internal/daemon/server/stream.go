package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/session"
)

// sseWriter frames JSON records as Server-Sent Events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) data(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamSSE relays a session stream until it ends or the client goes away.
// A disconnect leaves the process running.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, st *session.Stream) {
	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	logger := s.logger.WithField("session_id", st.SessionID())
	logger.Debug("Stream client attached")
	defer logger.Debug("Stream client detached")

	ctx := r.Context()
	for {
		ev, err := st.Next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("Stream read failed")
			}
			return
		}

		if ev.Type == session.EventKeepAlive {
			err = sse.comment("keepalive")
		} else {
			err = sse.data(ev)
		}
		if err != nil {
			logger.WithError(err).Debug("Stream client write failed")
			return
		}
	}
}

// streamError answers a streaming request with a single terminal error record.
func (s *Server) streamError(w http.ResponseWriter, r *http.Request, id string, err error) {
	sse, ok := newSSEWriter(w)
	if !ok {
		s.writeError(w, r, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"session_id": id, "path": r.URL.Path}).
		WithError(err).Debug("Stream request rejected")
	_ = sse.data(session.ErrorEvent(id, err))
}

// stateEvent is the record sent on /api/events.
type stateEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// convertToAPIUpdate maps an internal store update to the record sent to clients.
func convertToAPIUpdate(u store.Update) (stateEvent, bool) {
	switch u.Type {
	case store.UpdateSessions, store.UpdateFlags, store.UpdateCollector:
		return stateEvent{Type: string(u.Type), Payload: u.Payload}, true
	case store.UpdateContainer:
		report, ok := u.Payload.(store.ContainerReport)
		if !ok {
			return stateEvent{}, false
		}
		payload := map[string]interface{}{"status": report.Status}
		if report.Err != nil {
			payload["error"] = report.Err.Error()
		}
		return stateEvent{Type: string(u.Type), Payload: payload}, true
	}
	return stateEvent{}, false
}

// handleStreamState provides Server-Sent Events (SSE) for real-time state updates.
// Clients receive the full state first, then every change published by the collectors.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe to store updates
	st := s.engine.Store()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	if err := sse.comment("connected"); err != nil {
		return
	}
	s.logger.Debug("SSE client connected")

	// Send current state immediately so client has data right away
	if err := sse.data(stateEvent{Type: "state", Payload: st.Get()}); err != nil {
		return
	}

	keepAlive := s.deps.Config.Stream.KeepAlive
	if keepAlive <= 0 {
		keepAlive = config.DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case <-ticker.C:
			if err := sse.comment("keepalive"); err != nil {
				return
			}
		case u, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := convertToAPIUpdate(u)
			if !ok {
				continue
			}
			if err := sse.data(ev); err != nil {
				s.logger.WithError(err).Debug("Failed to write SSE update")
				return
			}
		}
	}
}
