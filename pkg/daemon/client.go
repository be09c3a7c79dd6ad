// Package daemon provides a client for the autoreg daemon (autoregd) HTTP API.
// Streaming calls return channels fed by a Server-Sent Events reader.
package daemon

import (
	"context"
	"encoding/json"
	"io"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/internal/artifacts"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/history"
	"github.com/grovetools/autoreg/internal/session"
)

// Client defines the interface for interacting with the autoreg daemon.
type Client interface {
	// Operations returns the configured operations.
	Operations(ctx context.Context) ([]Operation, error)

	// Start launches one step of an operation and streams its events. The
	// channel is closed after the terminal event or when ctx ends; ending
	// ctx detaches without stopping the process.
	Start(ctx context.Context, operation string, opts StartOptions) (<-chan session.Event, error)

	// Attach re-attaches to the stream of a running session.
	Attach(ctx context.Context, sessionID string, replay bool) (<-chan session.Event, error)

	// SendInput writes one line to an interactive session.
	SendInput(ctx context.Context, sessionID, text string) error

	// Interrupt terminates a session.
	Interrupt(ctx context.Context, sessionID string) (*session.InterruptResult, error)

	// Sessions returns the live sessions.
	Sessions(ctx context.Context) ([]session.Info, error)

	// Flags returns the state of the flag files.
	Flags(ctx context.Context) ([]flags.Status, error)

	// RaiseFlag creates a flag file; ClearFlag removes one.
	RaiseFlag(ctx context.Context, name string) error
	ClearFlag(ctx context.Context, name string) error

	// History returns recorded executions, newest first.
	History(ctx context.Context, operation string, limit int) ([]history.Execution, error)

	// Reports returns manual report rows; AddReport stores one.
	Reports(ctx context.Context, limit int) ([]history.ReportEntry, error)
	AddReport(ctx context.Context, entry history.ReportEntry) (*history.ReportEntry, error)

	// Artifacts lists the files produced by the script.
	Artifacts(ctx context.Context) ([]artifacts.Artifact, error)

	// DownloadArtifact copies an artifact to w and returns its file name.
	DownloadArtifact(ctx context.Context, name string, w io.Writer) (string, error)

	// ContainerStatus inspects the execution container.
	ContainerStatus(ctx context.Context) (*ContainerView, error)

	// RunningConfig returns the daemon's effective settings.
	RunningConfig(ctx context.Context) (map[string]interface{}, error)

	// StreamState subscribes to real-time state updates from the daemon.
	StreamState(ctx context.Context) (<-chan StateUpdate, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// StartOptions are the optional parameters of Start.
type StartOptions struct {
	SessionID string `json:"session_id,omitempty"`
	Step      int    `json:"step,omitempty"`
}

// Operation is a configured operation as listed by the daemon.
type Operation struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []config.Step `json:"steps"`
}

// ContainerView is the container status reported by the daemon.
type ContainerView struct {
	Enabled bool   `json:"enabled"`
	IP      string `json:"ip,omitempty"`
	*docker.ContainerStatus
}

// StateUpdate represents an update pushed from the daemon to subscribers.
// Type is "state" for the initial snapshot, then "sessions", "flags" or "container".
type StateUpdate struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
