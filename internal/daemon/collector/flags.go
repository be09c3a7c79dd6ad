package collector

import (
	"context"
	"os"
	"time"

	"github.com/grovetools/autoreg/internal/daemon/store"
	"github.com/grovetools/autoreg/internal/flags"
)

// FlagCollector publishes flag state whenever the flag directory changes.
// A slow poll backs up the watcher for filesystems without notifications.
type FlagCollector struct {
	channel  *flags.Channel
	interval time.Duration
}

// NewFlagCollector creates a new FlagCollector.
func NewFlagCollector(c *flags.Channel) *FlagCollector {
	return &FlagCollector{
		channel:  c,
		interval: 30 * time.Second,
	}
}

// Name returns the collector's name.
func (c *FlagCollector) Name() string { return "flags" }

// Run watches the flag directory until ctx is canceled.
func (c *FlagCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	if err := os.MkdirAll(c.channel.Dir(), 0755); err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	w, err := flags.NewWatcher(c.channel, func(flags.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()
	go w.Start(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	publish := func() {
		select {
		case updates <- store.Update{Type: store.UpdateFlags, Source: c.Name(), Payload: c.channel.Pending()}:
		case <-ctx.Done():
		}
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			publish()
		case <-ticker.C:
			publish()
		}
	}
}
