// Package engine supervises the daemon's background collectors.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/internal/daemon/collector"
	"github.com/grovetools/autoreg/internal/daemon/store"
)

const (
	defaultRestartDelay = time.Second
	maxRestartDelay     = time.Minute
)

// Engine runs collectors, restarts the ones that fail and applies their
// updates to the store.
type Engine struct {
	store        *store.Store
	collectors   []collector.Collector
	logger       *logrus.Entry
	restartDelay time.Duration
}

func New(st *store.Store, logger *logrus.Entry) *Engine {
	return &Engine{
		store:        st,
		logger:       logger,
		restartDelay: defaultRestartDelay,
	}
}

// SetRestartDelay sets the first backoff step after a collector fails.
// Each further failure doubles it, up to one minute.
func (e *Engine) SetRestartDelay(d time.Duration) {
	if d > 0 {
		e.restartDelay = d
	}
}

func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start blocks until ctx is canceled and every collector has returned.
func (e *Engine) Start(ctx context.Context) {
	updates := make(chan store.Update, 100)

	var wg sync.WaitGroup
	for _, c := range e.collectors {
		wg.Add(1)
		go func(col collector.Collector) {
			defer wg.Done()
			e.supervise(ctx, col, updates)
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case u := <-updates:
			e.store.ApplyUpdate(u)
		case <-done:
			return
		}
	}
}

func (e *Engine) supervise(ctx context.Context, col collector.Collector, updates chan<- store.Update) {
	log := e.logger.WithField("collector", col.Name())
	health := store.CollectorHealth{Name: col.Name()}
	delay := e.restartDelay

	for {
		health.Running = true
		health.Since = time.Now()
		e.report(ctx, updates, health)
		log.WithField("restarts", health.Restarts).Debug("Starting collector")

		err := col.Run(ctx, e.store, updates)
		if ctx.Err() != nil {
			return
		}

		health.Running = false
		health.Since = time.Now()
		if err == nil {
			health.LastError = ""
			e.report(ctx, updates, health)
			log.Debug("Collector finished")
			return
		}
		health.LastError = err.Error()
		e.report(ctx, updates, health)
		log.WithError(err).WithField("retry_in", delay).Error("Collector failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		health.Restarts++
		delay *= 2
		if delay > maxRestartDelay {
			delay = maxRestartDelay
		}
	}
}

func (e *Engine) report(ctx context.Context, updates chan<- store.Update, h store.CollectorHealth) {
	select {
	case updates <- store.Update{Type: store.UpdateCollector, Source: h.Name, Payload: h}:
	case <-ctx.Done():
	}
}

func (e *Engine) Store() *store.Store {
	return e.store
}
