package collector

import (
	"context"
	"reflect"
	"time"

	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/session"
)

// SessionCollector reaps finished sessions and publishes the session list
// whenever it changes.
type SessionCollector struct {
	manager  *session.Manager
	interval time.Duration
}

func NewSessionCollector(m *session.Manager) *SessionCollector {
	return &SessionCollector{
		manager:  m,
		interval: 2 * time.Second,
	}
}

func (c *SessionCollector) Name() string { return "session" }

func (c *SessionCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last []session.Info
	published := false
	for {
		// List reconciles the registry as a side effect.
		infos := c.manager.List()
		if !published || !reflect.DeepEqual(infos, last) {
			select {
			case updates <- store.Update{Type: store.UpdateSessions, Source: c.Name(), Payload: infos}:
				last, published = infos, true
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
