package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/session"
)

func newTestClient(t *testing.T, h http.Handler) *RemoteClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := NewRemoteClient(ts.URL)
	require.NoError(t, err)
	return c
}

func TestStartDecodesEventStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/operations/{op}/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"start\",\"operation\":%q}\n\n", r.PathValue("op"))
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"type\":\"output\",\"line\":\"hello\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"success\",\"progress\":100}\n\n")
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := c.Start(ctx, "buscar-pendentes", StartOptions{SessionID: "s1"})
	require.NoError(t, err)

	var events []session.Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "buscar-pendentes", events[0].Operation)
	assert.Equal(t, "hello", events[1].Line)
	assert.Equal(t, session.EventSuccess, events[2].Type)
}

func TestErrorsCarryDaemonCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions/{id}/input", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"code":"SESSION_NOT_FOUND","error":"session 'x' not found"}`)
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	err := c.SendInput(context.Background(), "x", "s")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
	assert.Equal(t, "session 'x' not found", errors.MessageOf(err))

	_, err = c.Sessions(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(err))
	assert.Contains(t, err.Error(), "502")
}

func TestUnreachableDaemon(t *testing.T) {
	c, err := NewRemoteClient("127.0.0.1:1")
	require.NoError(t, err)
	assert.False(t, c.IsRunning())

	_, err = c.Sessions(context.Background())
	assert.Equal(t, errors.ErrCodeDaemonUnreachable, errors.GetCode(err))
}

func TestResolveAddr(t *testing.T) {
	t.Setenv(AddrEnv, "")
	assert.Equal(t, "127.0.0.1:5000", ResolveAddr(nil))

	t.Setenv(AddrEnv, "10.0.0.5:7000")
	assert.Equal(t, "10.0.0.5:7000", ResolveAddr(nil))
}

func TestNewRemoteClientRejectsBadAddress(t *testing.T) {
	_, err := NewRemoteClient("http://")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestDownloadArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/artifacts/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "latest", r.PathValue("name"))
		assert.Contains(t, r.UserAgent(), "autoreg/")
		w.Header().Set("Content-Disposition", `attachment; filename="solicitacoes_exames_imprimir_1.pdf"`)
		fmt.Fprint(w, "%PDF-1.4")
	})
	mux.HandleFunc("GET /api/artifacts/missing.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"code":"ARTIFACT_NOT_FOUND","error":"artifact 'missing.pdf' not found"}`)
	})
	c := newTestClient(t, mux)

	var buf strings.Builder
	name, err := c.DownloadArtifact(context.Background(), "latest", &buf)
	require.NoError(t, err)
	assert.Equal(t, "solicitacoes_exames_imprimir_1.pdf", name)
	assert.Equal(t, "%PDF-1.4", buf.String())

	_, err = c.DownloadArtifact(context.Background(), "missing.pdf", &buf)
	assert.Equal(t, errors.ErrCodeArtifactNotFound, errors.GetCode(err))
}

func TestSessionsUnwrapsEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"sessions":[{"session_id":"s1","pid":42,"status":"running","kind":"buscar-pendentes"}]}`)
	})
	c := newTestClient(t, mux)

	list, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].SessionID)
	assert.Equal(t, 42, list[0].PID)
}
