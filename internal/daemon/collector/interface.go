// Package collector holds the background workers that keep the panel state
// (sessions, flags, container) current.
package collector

import (
	"context"

	"github.com/grovetools/autoreg/internal/daemon/store"
)

// Collector polls or watches one part of the panel state and sends what it
// sees on updates. Run returns nil once ctx is done; any other return is a
// failure and the engine restarts the collector.
type Collector interface {
	Name() string
	Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error
}
