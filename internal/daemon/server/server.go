// Package server provides the HTTP control API of the autoreg daemon.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/artifacts"
	"github.com/grovetools/autoreg/internal/daemon/engine"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/session"
)

// RunningConfig holds the effective settings of the daemon.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	Listen        string        `json:"listen"`
	Entrypoint    string        `json:"entrypoint"`
	Interpreter   string        `json:"interpreter,omitempty"`
	WorkDir       string        `json:"workdir,omitempty"`
	Container     string        `json:"container,omitempty"`
	UsePTY        bool          `json:"use_pty"`
	GracePeriod   time.Duration `json:"grace_period"`
	KeepAlive     time.Duration `json:"keepalive"`
	PromptTimeout time.Duration `json:"prompt_timeout"`
	FlagDir       string        `json:"flag_dir"`
	Operations    []string      `json:"operations"`
	Version       string        `json:"version"`
	StartedAt     time.Time     `json:"started_at"`
}

// Deps are the components the handlers operate on. Only Config and
// Manager are required.
type Deps struct {
	Config     *config.Config
	Manager    *session.Manager
	Flags      *flags.Channel
	History    *history.Store
	Artifacts  *artifacts.Lister
	Containers docker.Client
}

// Server manages the daemon's HTTP server.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	deps          Deps
	engine        *engine.Engine
	runningConfig *RunningConfig
	upgrader      websocket.Upgrader
}

// New creates a new Server instance.
func New(logger *logrus.Entry, deps Deps) *Server {
	s := &Server{
		logger: logger,
		deps:   deps,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetEngine sets the collector engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Control API
	mux.HandleFunc("GET /api/operations", s.handleListOperations)
	mux.HandleFunc("POST /api/operations/{operation}/start", s.handleStart)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions/{id}/input", s.handleSendInput)
	mux.HandleFunc("POST /api/sessions/{id}/interrupt", s.handleInterrupt)
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleReconnect)
	mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebSocket)

	// Flag files
	mux.HandleFunc("GET /api/flags", s.handleListFlags)
	mux.HandleFunc("POST /api/flags/{name}", s.handleRaiseFlag)
	mux.HandleFunc("DELETE /api/flags/{name}", s.handleClearFlag)

	// Panel state
	mux.HandleFunc("GET /api/container/status", s.handleContainerStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/summary", s.handleHistorySummary)
	mux.HandleFunc("GET /api/history/report", s.handleListReports)
	mux.HandleFunc("POST /api/history/report", s.handleAddReport)
	mux.HandleFunc("GET /api/artifacts", s.handleListArtifacts)
	mux.HandleFunc("GET /api/artifacts/{name}", s.handleDownloadArtifact)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("GET /api/events", s.handleStreamState)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	return mux
}

// ListenAndServe starts the daemon on the given TCP address.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", l.Addr().String()).Info("Daemon listening")
	err := s.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// checkOrigin accepts same-origin requests, requests without an Origin
// header, and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.deps.Config.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// statusFor maps error codes to HTTP status codes.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeSessionNotFound, errors.ErrCodeOperationNotFound, errors.ErrCodeArtifactNotFound:
		return http.StatusNotFound
	case errors.ErrCodeSessionExists:
		return http.StatusConflict
	case errors.ErrCodeProcessExited:
		return http.StatusGone
	case errors.ErrCodeInvalidInput, errors.ErrCodeStepOutOfRange, errors.ErrCodeFlagUnknown:
		return http.StatusBadRequest
	case errors.ErrCodeFlagProtected, errors.ErrCodePermissionDenied:
		return http.StatusForbidden
	case errors.ErrCodeContainerNotRunning, errors.ErrCodeContainerUnavailable, errors.ErrCodeHistoryDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool                   `json:"success"`
	Code    errors.ErrorCode       `json:"code"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// okResponse is the body of a control request that succeeded.
type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	resp := errorResponse{Code: code, Error: errors.MessageOf(err)}
	var ae *errors.AutoregError
	if stderrors.As(err, &ae) {
		resp.Details = ae.Details
	}

	status := statusFor(code)
	entry := s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"code":   code,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.Debug(resp.Error)
	}
	writeJSON(w, status, resp)
}

func writeOK(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes an optional JSON body into v. An empty body is fine.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		// Chunked requests carry no length, so emptiness shows up here.
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
