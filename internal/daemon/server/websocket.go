package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/session"
)

const wsWriteTimeout = 10 * time.Second

// wsClientMessage is a frame sent by a WebSocket client. {"input":"s"} is
// shorthand for {"type":"input","text":"s"}.
type wsClientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Input string `json:"input,omitempty"`
}

// wsAck answers a client frame.
type wsAck struct {
	Type    string           `json:"type"`
	Op      string           `json:"op"`
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Code    errors.ErrorCode `json:"code,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (c *wsConn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// handleWebSocket is the bidirectional variant of the reconnect stream.
// Events go out as JSON text frames; input and interrupt frames come in.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	replay, _ := strconv.ParseBool(r.URL.Query().Get("replay"))

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the request.
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}
	logger := s.logger.WithFields(logrus.Fields{"session_id": id, "transport": "websocket"})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	st, err := s.deps.Manager.Reconnect(ctx, id, replay)
	if err != nil {
		_ = conn.writeJSON(session.ErrorEvent(id, err))
		conn.close(websocket.CloseNormalClosure, errors.MessageOf(err))
		return
	}
	logger.Debug("WebSocket client attached")

	go s.readWebSocket(ctx, cancel, conn, id, logger)

	for {
		ev, err := st.Next(ctx)
		if err == io.EOF {
			conn.close(websocket.CloseNormalClosure, "stream finished")
			return
		}
		if err != nil {
			conn.close(websocket.CloseGoingAway, "")
			return
		}

		if ev.Type == session.EventKeepAlive {
			err = conn.ping()
		} else {
			err = conn.writeJSON(ev)
		}
		if err != nil {
			logger.WithError(err).Debug("WebSocket write failed")
			conn.close(websocket.CloseGoingAway, "")
			return
		}
	}
}

// readWebSocket routes client frames to the control operations. A read
// error ends the relay through cancel; the process keeps running.
func (s *Server) readWebSocket(ctx context.Context, cancel context.CancelFunc, conn *wsConn, id string, logger *logrus.Entry) {
	defer cancel()
	for {
		var msg wsClientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Debug("WebSocket read ended")
			}
			return
		}

		if msg.Type == "" && msg.Input != "" {
			msg.Type, msg.Text = "input", msg.Input
		}

		ack := wsAck{Type: "ack", Op: msg.Type, Success: true}
		switch msg.Type {
		case "input":
			if err := s.deps.Manager.SendInput(id, msg.Text); err != nil {
				ack = failedAck(msg.Type, err)
			} else {
				ack.Message = "input sent"
			}
		case "interrupt":
			res, err := s.deps.Manager.Interrupt(id)
			if err != nil {
				ack = failedAck(msg.Type, err)
			} else {
				ack.Message = res.Message
			}
		default:
			ack = failedAck("unknown", errors.New(errors.ErrCodeInvalidInput, "unknown message type "+strconv.Quote(msg.Type)))
		}

		if err := conn.writeJSON(ack); err != nil {
			return
		}
	}
}

func failedAck(op string, err error) wsAck {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return wsAck{Type: "ack", Op: op, Success: false, Message: errors.MessageOf(err), Code: code}
}
