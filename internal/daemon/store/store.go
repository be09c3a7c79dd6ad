package store

import (
	"sync"
	"time"

	"github.com/grovetools/autoreg/internal/flags"
	"github.com/grovetools/autoreg/internal/session"
)

// Store is the in-memory state store for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       *State
	subscribers map[chan Update]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state: &State{
			Sessions:   []session.Info{},
			Flags:      []flags.Status{},
			Collectors: []CollectorHealth{},
		},
		subscribers: make(map[chan Update]struct{}),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Return shallow copy
	return *s.state
}

// GetSessions returns the last published session list.
func (s *Store) GetSessions() []session.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]session.Info(nil), s.state.Sessions...)
}

// ApplyUpdate modifies the state and notifies subscribers.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateSessions:
		if sessions, ok := u.Payload.([]session.Info); ok {
			s.state.Sessions = sessions
		}
	case UpdateFlags:
		if st, ok := u.Payload.([]flags.Status); ok {
			s.state.Flags = st
		}
	case UpdateContainer:
		if report, ok := u.Payload.(ContainerReport); ok {
			s.state.Container = report.Status
			s.state.ContainerError = ""
			if report.Err != nil {
				s.state.ContainerError = report.Err.Error()
			}
		}
	case UpdateCollector:
		if h, ok := u.Payload.(CollectorHealth); ok {
			s.state.Collectors = upsertHealth(s.state.Collectors, h)
		}
	default:
		return
	}
	s.state.UpdatedAt = time.Now()

	// Broadcast to subscribers
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
	close(ch)
}

// upsertHealth returns a new slice so snapshots handed out by Get stay unchanged.
func upsertHealth(list []CollectorHealth, h CollectorHealth) []CollectorHealth {
	out := make([]CollectorHealth, 0, len(list)+1)
	replaced := false
	for _, cur := range list {
		if cur.Name == h.Name {
			out = append(out, h)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, h)
	}
	return out
}
