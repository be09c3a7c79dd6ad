package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/internal/artifacts"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/session"
	"github.com/grovetools/autoreg/version"
)

// RemoteClient implements Client by calling the daemon's HTTP API.
type RemoteClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
}

// NewRemoteClient creates a RemoteClient for the daemon at addr
// ("127.0.0.1:5000" or a full http:// URL).
func NewRemoteClient(addr string) (*RemoteClient, error) {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid daemon address %q", addr))
	}

	transport := &http.Transport{
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	return &RemoteClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		// Streams and interrupts outlive the default timeout.
		streamClient: &http.Client{Transport: transport},
		baseURL:      strings.TrimRight(u.String(), "/"),
	}, nil
}

// BaseURL returns the daemon URL the client talks to.
func (c *RemoteClient) BaseURL() string {
	return c.baseURL
}

// apiError decodes the error envelope of a failed request.
func apiError(resp *http.Response) error {
	var body struct {
		Code    errors.ErrorCode       `json:"code"`
		Error   string                 `json:"error"`
		Details map[string]interface{} `json:"details"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return errors.New(errors.ErrCodeInternal, fmt.Sprintf("daemon returned status %d: %s", resp.StatusCode, msg))
	}
	return &errors.AutoregError{Code: body.Code, Message: body.Error, Details: body.Details}
}

func (c *RemoteClient) do(ctx context.Context, client *http.Client, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "failed to reach the autoreg daemon").
			WithDetail("url", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *RemoteClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, c.httpClient, http.MethodGet, path, nil, out)
}

// Operations returns the configured operations.
func (c *RemoteClient) Operations(ctx context.Context) ([]Operation, error) {
	var ops []Operation
	return ops, c.get(ctx, "/api/operations", &ops)
}

// Start launches one step of an operation and streams its events.
func (c *RemoteClient) Start(ctx context.Context, operation string, opts StartOptions) (<-chan session.Event, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/operations/"+url.PathEscape(operation)+"/start", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.openEventStream(ctx, req)
}

// Attach re-attaches to the stream of a running session.
func (c *RemoteClient) Attach(ctx context.Context, sessionID string, replay bool) (<-chan session.Event, error) {
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/stream"
	if replay {
		path += "?replay=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	return c.openEventStream(ctx, req)
}

func (c *RemoteClient) openEventStream(ctx context.Context, req *http.Request) (<-chan session.Event, error) {
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "failed to connect to stream").
			WithDetail("url", c.baseURL)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}

	ch := make(chan session.Event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		scanSSE(ctx, resp.Body, func(data []byte) bool {
			var ev session.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return true // Skip malformed data
			}
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch, nil
}

// scanSSE calls fn with the payload of every data line until the body ends
// or fn returns false. Comments and blank lines are skipped.
func scanSSE(ctx context.Context, body io.Reader, fn func(data []byte) bool) {
	scanner := bufio.NewScanner(body)
	// Output lines and state snapshots can exceed the default 64KB token
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 10*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.HasPrefix(line, ":") || line == "" {
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			if !fn([]byte(strings.TrimPrefix(line, "data: "))) {
				return
			}
		}
	}
}

// SendInput writes one line to an interactive session.
func (c *RemoteClient) SendInput(ctx context.Context, sessionID, text string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/input",
		map[string]string{"text": text}, nil)
}

// Interrupt terminates a session. It can take the whole grace period.
func (c *RemoteClient) Interrupt(ctx context.Context, sessionID string) (*session.InterruptResult, error) {
	var res session.InterruptResult
	err := c.do(ctx, c.streamClient, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/interrupt", nil, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Sessions returns the live sessions.
func (c *RemoteClient) Sessions(ctx context.Context) ([]session.Info, error) {
	var body struct {
		Sessions []session.Info `json:"sessions"`
	}
	return body.Sessions, c.get(ctx, "/api/sessions", &body)
}

// Flags returns the state of the flag files.
func (c *RemoteClient) Flags(ctx context.Context) ([]flags.Status, error) {
	var list []flags.Status
	return list, c.get(ctx, "/api/flags", &list)
}

// RaiseFlag creates a flag file.
func (c *RemoteClient) RaiseFlag(ctx context.Context, name string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/api/flags/"+url.PathEscape(name), nil, nil)
}

// ClearFlag removes a flag file.
func (c *RemoteClient) ClearFlag(ctx context.Context, name string) error {
	return c.do(ctx, c.httpClient, http.MethodDelete, "/api/flags/"+url.PathEscape(name), nil, nil)
}

// History returns recorded executions, newest first.
func (c *RemoteClient) History(ctx context.Context, operation string, limit int) ([]history.Execution, error) {
	q := url.Values{}
	if operation != "" {
		q.Set("operation", operation)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []history.Execution
	return list, c.get(ctx, path, &list)
}

// Reports returns manual report rows.
func (c *RemoteClient) Reports(ctx context.Context, limit int) ([]history.ReportEntry, error) {
	path := "/api/history/report"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []history.ReportEntry
	return list, c.get(ctx, path, &list)
}

// AddReport stores a manual report row.
func (c *RemoteClient) AddReport(ctx context.Context, entry history.ReportEntry) (*history.ReportEntry, error) {
	var saved history.ReportEntry
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/api/history/report", entry, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Artifacts lists the files produced by the script.
func (c *RemoteClient) Artifacts(ctx context.Context) ([]artifacts.Artifact, error) {
	var list []artifacts.Artifact
	return list, c.get(ctx, "/api/artifacts", &list)
}

// DownloadArtifact copies the named artifact ("latest" for the newest) to w
// and returns its file name.
func (c *RemoteClient) DownloadArtifact(ctx context.Context, name string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/artifacts/"+url.PathEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "failed to reach the autoreg daemon").
			WithDetail("url", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	filename := name
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	return filename, nil
}

// ContainerStatus inspects the execution container.
func (c *RemoteClient) ContainerStatus(ctx context.Context) (*ContainerView, error) {
	var view ContainerView
	if err := c.get(ctx, "/api/container/status", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// RunningConfig returns the daemon's effective settings.
func (c *RemoteClient) RunningConfig(ctx context.Context) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	return cfg, c.get(ctx, "/api/config", &cfg)
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamState subscribes to real-time state updates via Server-Sent Events (SSE).
// Returns a channel that receives updates. The channel is closed when the context is cancelled
// or the connection is lost.
func (c *RemoteClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonUnreachable, "failed to connect to stream")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	ch := make(chan StateUpdate, 10)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		scanSSE(ctx, resp.Body, func(data []byte) bool {
			var update StateUpdate
			if err := json.Unmarshal(data, &update); err != nil {
				return true
			}
			select {
			case ch <- update:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
