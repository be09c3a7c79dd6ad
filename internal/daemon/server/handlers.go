package server

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/artifacts"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/session"
)

type startRequest struct {
	SessionID string `json:"session_id"`
	Step      int    `json:"step"`
}

type inputRequest struct {
	Text string `json:"text"`
}

// operationView is the listing form of a configured operation.
type operationView struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []config.Step `json:"steps"`
}

// handleListOperations returns the configured operations.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Config
	ops := make([]operationView, 0, len(cfg.Operations))
	for _, name := range cfg.OperationNames() {
		op := cfg.Operations[name]
		ops = append(ops, operationView{Name: name, Description: op.Description, Steps: op.Steps})
	}
	writeJSON(w, http.StatusOK, ops)
}

// handleStart launches one step and streams its events.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session_id")
	}
	if v := r.URL.Query().Get("step"); v != "" && req.Step == 0 {
		step, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid step %q", v)))
			return
		}
		req.Step = step
	}

	st, err := s.deps.Manager.Start(r.Context(), session.StartRequest{
		Operation: r.PathValue("operation"),
		SessionID: req.SessionID,
		Step:      req.Step,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamSSE(w, r, st)
}

// handleSendInput writes a line to the stdin of an interactive session.
func (s *Server) handleSendInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Manager.SendInput(id, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, "input sent")
}

// handleInterrupt terminates a session.
func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Manager.Interrupt(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		session.InterruptResult
	}{true, res})
}

// handleListSessions returns the live sessions after reconciling exited ones.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionList{Success: true, Sessions: s.deps.Manager.List()})
}

// sessionList is the body of GET /api/sessions.
type sessionList struct {
	Success  bool           `json:"success"`
	Sessions []session.Info `json:"sessions"`
}

// handleReconnect re-attaches to a session's event stream.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	replay, _ := strconv.ParseBool(r.URL.Query().Get("replay"))

	st, err := s.deps.Manager.Reconnect(r.Context(), id, replay)
	if err != nil {
		// Stream observers see the failure as a terminal record.
		s.streamError(w, r, id, err)
		return
	}
	s.streamSSE(w, r, st)
}

// handleListFlags returns the state of every managed flag.
func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	if s.deps.Flags == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "flag channel not configured"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Flags.Pending())
}

// handleRaiseFlag creates a flag file.
func (s *Server) handleRaiseFlag(w http.ResponseWriter, r *http.Request) {
	if s.deps.Flags == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "flag channel not configured"))
		return
	}
	kind, err := s.deps.Flags.ParseKind(r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Flags.Raise(kind); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("flag %s raised", kind))
}

// handleClearFlag removes a flag file. Only pause may be cleared.
func (s *Server) handleClearFlag(w http.ResponseWriter, r *http.Request) {
	if s.deps.Flags == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "flag channel not configured"))
		return
	}
	kind, err := s.deps.Flags.ParseKind(r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Flags.Clear(kind); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("flag %s cleared", kind))
}

// containerView adds the primary address to a container status.
type containerView struct {
	Enabled bool   `json:"enabled"`
	IP      string `json:"ip,omitempty"`
	*docker.ContainerStatus
}

// handleContainerStatus inspects the execution container.
func (s *Server) handleContainerStatus(w http.ResponseWriter, r *http.Request) {
	name := s.deps.Config.Container.Name
	if !s.deps.Config.Container.Enabled || name == "" {
		writeJSON(w, http.StatusOK, containerView{})
		return
	}
	if s.deps.Containers == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeContainerUnavailable, "docker client not configured"))
		return
	}
	status, err := s.deps.Containers.ContainerStatus(r.Context(), name)
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.ErrCodeContainerUnavailable, "failed to inspect container").
			WithDetail("container", name))
		return
	}
	writeJSON(w, http.StatusOK, containerView{Enabled: true, IP: status.IP(), ContainerStatus: status})
}

// handleHistory lists recorded executions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	q := history.Query{Operation: r.URL.Query().Get("operation")}
	var err error
	if q.Limit, err = intParam(r, "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Since, err = sinceParam(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.History.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHistorySummary aggregates executions per operation.
func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	since, err := sinceParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.deps.History.Summary(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAddReport stores a manual report row.
func (s *Server) handleAddReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	var entry history.ReportEntry
	if err := decodeBody(r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.deps.History.AddReport(r.Context(), entry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleListReports returns manual report rows, newest first.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reports, err := s.deps.History.Reports(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) requireHistory(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.History == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeHistoryDisabled, "execution history is disabled"))
		return false
	}
	return true
}

// handleListArtifacts returns the files produced by the script.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artifacts == nil {
		writeJSON(w, http.StatusOK, []artifacts.Artifact{})
		return
	}
	list, err := s.deps.Artifacts.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []artifacts.Artifact{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDownloadArtifact serves one artifact. "latest" selects the newest.
func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artifacts == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeArtifactNotFound, "artifacts are not configured"))
		return
	}
	name := r.PathValue("name")
	a, err := s.deps.Artifacts.Find(name)
	if name == "latest" && errors.Is(err, errors.ErrCodeArtifactNotFound) {
		a, err = s.deps.Artifacts.Latest()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := os.Open(a.Path)
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.ErrCodeArtifactNotFound, "artifact is no longer readable").
			WithDetail("name", a.Name))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	http.ServeContent(w, r, a.Name, a.ModTime, f)
}

// handleGetState returns the complete daemon state as JSON.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Store().Get())
}

// handleGetConfig returns the running configuration of the daemon.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "running config not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid %s %q", name, v))
	}
	return n, nil
}

// sinceParam accepts an RFC 3339 timestamp or a duration back from now ("24h").
func sinceParam(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid since %q", v))
	}
	return t, nil
}
