// Package store provides the in-memory panel state published by the daemon.
package store

import (
	"time"

	"github.com/grovetools/autoreg/docker"
	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/session"
)

// State represents the complete world view of the daemon.
type State struct {
	Sessions       []session.Info          `json:"sessions"`
	Flags          []flags.Status          `json:"flags"`
	Container      *docker.ContainerStatus `json:"container,omitempty"`
	ContainerError string                  `json:"container_error,omitempty"`
	Collectors     []CollectorHealth       `json:"collectors"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// CollectorHealth is what the engine knows about one collector.
type CollectorHealth struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateSessions  UpdateType = "sessions"
	UpdateFlags     UpdateType = "flags"
	UpdateContainer UpdateType = "container"
	UpdateCollector UpdateType = "collector"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType
	Source  string // Which collector sent this update (e.g., "session", "flags", "container")
	Payload interface{}
}

// ContainerReport is the payload of an UpdateContainer.
type ContainerReport struct {
	Status *docker.ContainerStatus
	Err    error
}
